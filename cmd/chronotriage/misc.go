package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/mailtext"
	"github.com/joshsymonds/chronotriage/internal/priority"
	"github.com/joshsymonds/chronotriage/internal/settings"
)

type classification struct {
	Thread   string `json:"thread"`
	Label    string `json:"label"`
	Rule     int    `json:"rule"`
	Priority string `json:"priority,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify FILE.eml...",
		Short: "Run the stored filters against saved messages of one thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			raw, err := store.Filters(cmd.Context())
			if err != nil {
				return err
			}
			rules, _ := filter.Compile(raw)

			th, err := mailtext.ReadThread(args...)
			if err != nil {
				return err
			}
			msgs := filter.Materialize(th)
			out := classification{Thread: string(th.ID), Label: filter.Classify(msgs, rules), Rule: -1}
			if i, ok := filter.Match(msgs, rules); ok {
				out.Rule = rules[i].Position
			}
			ranks := cfg.Priority.Ranks
			if len(ranks) == 0 {
				ranks = priority.DefaultRanks
			}
			out.Priority, _ = priority.FromThread(th, ranks)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s", out.Thread, out.Label)
			if out.Rule >= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (rule %d)", out.Rule)
			}
			if out.Priority != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " priority %s", out.Priority)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recent triage runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  processed=%d failed=%d dequeued=%d took=%s\n",
					r.StartedAt.Format("2006-01-02 15:04"), r.ID, r.Processed, r.Failed, r.Dequeued,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func newVacationCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "vacation [QUEUE]",
		Short: "Limit the triage view to one queue, or show the current one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			ctx := cmd.Context()
			switch {
			case off:
				return store.Set(ctx, settings.KeyVacation, "")
			case len(args) == 1:
				return store.Set(ctx, settings.KeyVacation, strings.ToLower(strings.TrimSpace(args[0])))
			}
			current, err := readVacation(ctx, store)
			if err != nil {
				return err
			}
			if current == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "vacation mode off")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vacation mode: only %q is shown for triage\n", current)
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "turn vacation mode off")
	return cmd
}

func readVacation(ctx context.Context, store *settings.Store) (string, error) {
	v, err := store.Get(ctx, settings.KeyVacation)
	if errors.Is(err, settings.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(v)), nil
}

func currentVacation(ctx context.Context) (string, error) {
	store, _, err := openStore()
	if err != nil {
		return "", err
	}
	defer func() { _ = store.Close() }()
	return readVacation(ctx, store)
}
