package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/chronotriage/internal/labels"
)

func newLabelsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "labels", Short: "Inspect and maintain triage labels"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List triage labels by section",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, stop, err := openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			vacation, err := currentVacation(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string][]string{
				"priority":     reg.PriorityLabelNames(),
				"needs-triage": triageView(reg.NeedsTriageLabelNames(), reg.Names(), vacation),
				"queued":       reg.QueuedLabelNames(),
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			sections := make([]string, 0, len(out))
			for s := range out {
				sections = append(sections, s)
			}
			sort.Strings(sections)
			for _, s := range sections {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", s)
				for _, name := range out[s] {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
				}
			}
			return nil
		},
	}

	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create the fixed labels under the prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, stop, err := openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			names := reg.Names()
			for _, name := range []string{names.Unprocessed(), names.Muted(), names.ArchivedByFilter()} {
				id, err := reg.ResolveOrCreate(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, name)
			}
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a label and everything nested under it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, stop, err := openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			return reg.Rename(cmd.Context(), args[0], args[1])
		},
	}

	var nested bool
	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, stop, err := openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			return reg.Delete(cmd.Context(), args[0], nested)
		},
	}
	del.Flags().BoolVar(&nested, "nested", false, "also delete labels nested under NAME")

	cmd.AddCommand(list, ensure, rename, del)
	return cmd
}

// triageView narrows needs-triage labels to the vacation queue when one is set.
// The sweep still releases every due queue; vacation only hides the rest.
func triageView(names []string, conv labels.Names, vacation string) []string {
	if vacation == "" {
		return names
	}
	want := conv.NeedsTriage(vacation)
	var out []string
	for _, n := range names {
		if n == want {
			out = append(out, n)
		}
	}
	return out
}
