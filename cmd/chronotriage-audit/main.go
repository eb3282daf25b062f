package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshsymonds/chronotriage/internal/audit"
	"github.com/joshsymonds/chronotriage/internal/config"
	"github.com/joshsymonds/chronotriage/internal/gmailctl"
	"github.com/joshsymonds/chronotriage/internal/runtime"
	"github.com/joshsymonds/chronotriage/internal/settings"
)

const hoursPerDay = 24

type auditConfig struct {
	configPath     string
	days           int
	topN           int
	jsonOut        string
	pageSize       int
	lint           bool
	failOn         string
	useGmailctl    bool
	gmailctlCfg    string
	gmailctlBinary string
	gmailctlFile   string
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("chronotriage-audit failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() auditConfig {
	defaultPath, err := config.Path()
	if err != nil {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "chronotriage config file")
	days := flag.Int("days", 60, "lookback window in days")
	topN := flag.Int("top", 30, "number of top senders/lists to display")
	jsonOut := flag.String("json", "", "write JSON report to path")
	pageSize := flag.Int("page-size", 500, "Gmail list page size (<=500)")
	lint := flag.Bool("lint", false, "print only findings and exit non-zero on -fail-on")
	failOn := flag.String("fail-on", "dead,invalid,shadowed", "comma separated lint failures")
	useGmailctl := flag.Bool("gmailctl", false, "replay gmailctl filters instead of stored rules")
	gmailctlConfig := flag.String("gmailctl-config", "", "path to gmailctl config (optional)")
	gmailctlBin := flag.String("gmailctl-binary", "gmailctl", "gmailctl binary to invoke")
	gmailctlFile := flag.String("gmailctl-file", "", "saved gmailctl compile output to replay instead of running gmailctl")
	flag.Parse()

	return auditConfig{
		configPath:     *configPath,
		days:           *days,
		topN:           *topN,
		jsonOut:        *jsonOut,
		pageSize:       *pageSize,
		lint:           *lint,
		failOn:         *failOn,
		useGmailctl:    *useGmailctl,
		gmailctlCfg:    *gmailctlConfig,
		gmailctlBinary: *gmailctlBin,
		gmailctlFile:   *gmailctlFile,
	}
}

func run(cfg auditConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(appCfg.Log.Level, appCfg.Log.Format)
	client, stop, err := runtime.NewGmailClient(ctx, appCfg)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}
	defer stop()

	var source audit.RuleSource
	if cfg.useGmailctl || cfg.gmailctlFile != "" {
		dir := cfg.gmailctlCfg
		if dir == "" {
			dir = appCfg.Auth.Dir
		}
		source = audit.GmailctlRules{Loader: gmailctl.Runner{
			Binary:    cfg.gmailctlBinary,
			ConfigDir: dir,
			File:      cfg.gmailctlFile,
		}}
	} else {
		store, err := settings.Open(appCfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		source = store
	}

	svc := audit.NewService(client, source, logger)
	window := time.Duration(cfg.days) * hoursPerDay * time.Hour
	opts := audit.Options{Window: window, TopN: cfg.topN, PageSize: cfg.pageSize}

	if cfg.lint {
		rep, err := svc.RunLint(ctx, opts)
		if err != nil {
			return fmt.Errorf("run lint: %w", err)
		}
		if _, err := os.Stdout.WriteString(rep.HumanSummary()); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		if rep.ShouldFail(audit.ParseFailOn(cfg.failOn)) {
			return fmt.Errorf("lint failures matched: %s", cfg.failOn)
		}
		return nil
	}

	rep, err := svc.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("run audit: %w", err)
	}
	if printErr := audit.PrintHuman(rep, os.Stdout); printErr != nil {
		return fmt.Errorf("print report: %w", printErr)
	}
	if cfg.jsonOut == "" {
		return nil
	}
	if writeErr := audit.WriteJSON(rep, cfg.jsonOut); writeErr != nil {
		return fmt.Errorf("write json: %w", writeErr)
	}
	return nil
}
