package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/joshsymonds/chronotriage/internal/config"
	"github.com/joshsymonds/chronotriage/internal/labels"
	"github.com/joshsymonds/chronotriage/internal/runtime"
	"github.com/joshsymonds/chronotriage/internal/settings"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		runtime.DefaultLogger().Error("chronotriage failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaultPath, err := config.Path()
	if err != nil {
		defaultPath = "config.yaml"
	}
	root := &cobra.Command{
		Use:           "chronotriage",
		Short:         "Manage chronotriage labels, filters and queues",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultPath, "chronotriage config file")
	root.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	root.AddCommand(
		newInitCmd(),
		newLabelsCmd(),
		newFiltersCmd(),
		newQueuesCmd(),
		newClassifyCmd(),
		newStatsCmd(),
		newVacationCmd(),
	)
	return root
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, runtime.NewLogger(cfg.Log.Level, cfg.Log.Format), nil
}

func openStore() (*settings.Store, config.Config, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}
	store, err := settings.Open(cfg.DBPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	return store, cfg, nil
}

// openRegistry authenticates and returns a fetched label registry.
func openRegistry(ctx context.Context) (*labels.Registry, func(), error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, stop, err := runtime.NewGmailClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create gmail client: %w", err)
	}
	reg := labels.NewRegistry(client, labels.NewNames(cfg.Prefix), logger)
	if err := reg.Fetch(ctx); err != nil {
		stop()
		return nil, nil, err
	}
	return reg, stop, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the settings database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := config.Default().Save(configPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
			}
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", cfg.DBPath)
			return nil
		},
	}
}
