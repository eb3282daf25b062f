package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/gmailctl"
	"github.com/joshsymonds/chronotriage/internal/settings"
)

func newFiltersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "filters", Short: "Manage the ordered filter rules"}

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace filters and queues from a YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()
			doc, err := settings.DecodeDocument(f)
			if err != nil {
				return err
			}
			if compiled, findings := filter.Compile(doc.Filters); len(compiled) < len(doc.Filters) {
				printFindings(cmd, findings)
				return errors.New("document contains invalid filters")
			}
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.ReplaceFilters(cmd.Context(), doc.Filters); err != nil {
				return err
			}
			if doc.Queues != nil {
				if err := store.ReplaceQueues(cmd.Context(), doc.Queues); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d filters, %d queues\n", len(doc.Filters), len(doc.Queues))
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Print filters and queues as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			rules, err := store.Filters(cmd.Context())
			if err != nil {
				return err
			}
			queues, err := store.Queues(cmd.Context())
			if err != nil {
				return err
			}
			doc := settings.Document{Filters: rules, Queues: queues}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), doc)
			}
			return settings.EncodeDocument(cmd.OutOrStdout(), doc)
		},
	}

	lint := &cobra.Command{
		Use:   "lint",
		Short: "Report invalid and shadowed filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			rules, err := store.Filters(cmd.Context())
			if err != nil {
				return err
			}
			findings := filter.Lint(rules)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), findings)
			}
			printFindings(cmd, findings)
			if len(findings) > 0 {
				return fmt.Errorf("%d filter findings", len(findings))
			}
			return nil
		},
	}

	var (
		file      string
		binary    string
		configDir string
		replace   bool
	)
	fromGmailctl := &cobra.Command{
		Use:   "gmailctl",
		Short: "Convert gmailctl filters into triage rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := gmailctl.Runner{Binary: binary, ConfigDir: configDir, File: file}
			export, err := runner.ExportFilters(cmd.Context())
			if err != nil {
				return err
			}
			rules, skipped := gmailctl.Convert(export)
			for _, s := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", s.Filter, s.Reason)
			}
			if !replace {
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), rules)
				}
				return settings.EncodeDocument(cmd.OutOrStdout(), settings.Document{Filters: rules})
			}
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.ReplaceFilters(cmd.Context(), rules); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d filters (%d skipped)\n", len(rules), len(skipped))
			return nil
		},
	}
	fromGmailctl.Flags().StringVar(&file, "file", "", "saved `gmailctl compile --format=json` output")
	fromGmailctl.Flags().StringVar(&binary, "binary", "gmailctl", "gmailctl binary")
	fromGmailctl.Flags().StringVar(&configDir, "gmailctl-config", "", "gmailctl config directory")
	fromGmailctl.Flags().BoolVar(&replace, "replace", false, "store the converted rules instead of printing them")

	cmd.AddCommand(importCmd, export, lint, fromGmailctl)
	return cmd
}

func printFindings(cmd *cobra.Command, findings []filter.Finding) {
	for _, f := range findings {
		fmt.Fprintf(cmd.OutOrStdout(), "rule %d (%s): %s\n", f.Index, f.Label, f.Reason)
	}
}
