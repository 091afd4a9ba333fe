package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/veritas-backend/internal/domain"
	"github.com/tbourn/veritas-backend/internal/verdict"
)

type checkOptions struct {
	image    string
	imageURL string
	pageURL  string
	asJSON   bool
}

func newCheckCmd(c *cli) *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check <claim>",
		Short: "Verify one claim and print the verdict",
		Long: `Verifies a claim once, using the same cache, history and model fallback
as the API. The exit status is 2 when the verdict is an Error.

Examples:
  veritas check "The Great Wall is visible from space."
  veritas check "This photo shows the 2024 eclipse." --image eclipse.jpg
  veritas check "The article says unemployment fell." --url https://example.com/news`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runCheck(cmd.Context(), a, strings.Join(args, " "), opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.image, "image", "", "image file to check the claim against")
	f.StringVar(&opts.imageURL, "image-url", "", "image URL to check the claim against")
	f.StringVar(&opts.pageURL, "url", "", "web page whose content is the context of the claim")
	f.BoolVar(&opts.asJSON, "json", false, "print the verdict as JSON")
	cmd.MarkFlagsMutuallyExclusive("image", "image-url", "url")
	return cmd
}

func runCheck(ctx context.Context, a *app, claim string, opts checkOptions, out io.Writer) error {
	var (
		v   domain.Verdict
		err error
	)
	switch {
	case opts.image != "":
		data, rerr := os.ReadFile(opts.image)
		if rerr != nil {
			return rerr
		}
		v, err = a.verifier.VerifyUpload(ctx, claim, data, "")
	case opts.imageURL != "":
		v, err = a.verifier.VerifyImageURL(ctx, claim, opts.imageURL)
	case opts.pageURL != "":
		v, err = a.verifier.VerifyPage(ctx, claim, opts.pageURL)
	default:
		v, err = a.verifier.VerifyText(ctx, claim)
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, verdict.Format(v))
		if v.IsError() && v.DebugInfo != "" {
			fmt.Fprintf(out, "(%s)\n", v.DebugInfo)
		}
	}
	if v.IsError() {
		return errVerdictFailed
	}
	return nil
}
