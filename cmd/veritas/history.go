package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/veritas-backend/internal/sysutil"
	"github.com/tbourn/veritas-backend/internal/utils"
	"github.com/tbourn/veritas-backend/internal/verdict"
)

type historyOptions struct {
	clear bool
	yes   bool
	limit int
	query string
}

func newHistoryCmd(c *cli) *cobra.Command {
	var opts historyOptions
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear past verdicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if opts.clear {
				return runHistoryClear(cmd.Context(), a, opts.yes, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runHistoryList(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.clear, "clear", false, "delete all history entries (the result cache is kept)")
	f.BoolVarP(&opts.yes, "yes", "y", false, "do not ask for confirmation when clearing")
	f.IntVar(&opts.limit, "limit", 20, "maximum entries to show")
	f.StringVarP(&opts.query, "query", "q", "", "rank entries by similarity to this text")
	return cmd
}

func runHistoryList(ctx context.Context, a *app, opts historyOptions, out io.Writer) error {
	items, err := a.verifier.ListHistory(ctx, opts.query, utils.ClampInt(opts.limit, 1, 100))
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return nil
	}
	for _, v := range items {
		when := "-"
		if v.Timestamp > 0 {
			when = time.UnixMilli(v.Timestamp).Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "%s  %-14s  %s\n", when, v.Flag.Keyword(), v.Claim)
		if s := verdict.Summary(v); s != "" {
			fmt.Fprintf(out, "    %s\n", s)
		}
	}
	return nil
}

func runHistoryClear(ctx context.Context, a *app, yes bool, in io.Reader, out io.Writer) error {
	if !yes {
		fmt.Fprint(out, "Clear all history? [y/N] ")
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if !sysutil.IsTruthy(answer) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}
	if err := a.verifier.ClearHistory(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "History cleared.")
	return nil
}
