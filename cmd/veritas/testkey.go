package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tbourn/veritas-backend/internal/services"
	"github.com/tbourn/veritas-backend/internal/sysutil"
)

func newTestKeyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "test-key [KEY]",
		Short: "Probe a Gemini API key",
		Long: `Sends a minimal prompt with KEY, or with the configured key when KEY is
omitted, and reports whether the key works.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runTestKey(cmd.Context(), a, sysutil.FirstNonEmpty(args...), cmd.OutOrStdout())
		},
	}
}

func runTestKey(ctx context.Context, a *app, key string, out io.Writer) error {
	res, err := a.settings.TestCredential(ctx, key)
	if errors.Is(err, services.ErrNoCredential) {
		return errors.New("no API key configured: pass one or set GEMINI_API_KEY")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Message)
	if !res.Valid {
		return errVerdictFailed
	}
	return nil
}
