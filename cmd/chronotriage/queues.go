package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/chronotriage/internal/queue"
	"github.com/joshsymonds/chronotriage/internal/settings"
)

func newQueuesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "queues", Short: "Configure when queued labels return to the inbox"}

	show := &cobra.Command{
		Use:   "show",
		Short: "List queue settings in release order",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			qs, err := store.Queues(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), qs)
			}
			keys := make([]string, 0, len(qs))
			for k := range qs {
				keys = append(keys, k)
			}
			for _, k := range queue.DequeueOrder(keys, qs) {
				d := qs[k]
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-10s %-12s %d\n", k, d.Queue, d.Goal, d.Index)
			}
			return nil
		},
	}

	var (
		goal  string
		index int
	)
	set := &cobra.Command{
		Use:   "set LABEL BUCKET",
		Short: "Assign a label to a release bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := queue.ParseBucket(args[1])
			if err != nil {
				return err
			}
			g, err := queue.ParseGoal(goal)
			if err != nil {
				return err
			}
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			qs, err := store.Queues(cmd.Context())
			if err != nil {
				return err
			}
			if qs == nil {
				qs = queue.Settings{}
			}
			qs[strings.ToLower(strings.TrimSpace(args[0]))] = queue.Data{Queue: bucket, Goal: g, Index: index}
			if err := qs.Validate(); err != nil {
				return err
			}
			return store.ReplaceQueues(cmd.Context(), qs)
		},
	}
	set.Flags().StringVar(&goal, "goal", string(queue.InboxZero), "goal carried for the label")
	set.Flags().IntVar(&index, "index", 0, "ordering within the bucket")

	var at string
	due := &cobra.Command{
		Use:   "due",
		Short: "Show which buckets a sweep would release",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			if at != "" {
				if now, err = time.ParseInLocation(time.RFC3339, at, loc); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}
			last, err := store.LastDequeue(cmd.Context())
			if err != nil {
				return err
			}
			qs, err := store.Queues(cmd.Context())
			if err != nil {
				return err
			}
			return printDue(cmd, last, now, loc, qs)
		},
	}
	due.Flags().StringVar(&at, "at", "", "evaluate at this RFC3339 time instead of now")

	cmd.AddCommand(show, set, due)
	return cmd
}

type dueReport struct {
	LastDequeue *time.Time          `json:"last_dequeue,omitempty"`
	At          time.Time           `json:"at"`
	Buckets     map[string][]string `json:"buckets"`
}

func printDue(cmd *cobra.Command, last *time.Time, now time.Time, loc *time.Location, qs queue.Settings) error {
	keys := make([]string, 0, len(qs))
	for k := range qs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rep := dueReport{LastDequeue: last, At: now, Buckets: map[string][]string{}}
	for _, b := range queue.DueBuckets(last, now, loc) {
		rep.Buckets[string(b)] = queue.LabelsInBucket(keys, qs, b)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), rep)
	}
	if last != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "last sweep %s\n", settings.FormatMillis(*last))
	}
	if len(rep.Buckets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing due")
		return nil
	}
	for b, labels := range rep.Buckets {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", b, strings.Join(labels, ", "))
	}
	return nil
}
