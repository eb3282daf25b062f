package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/joshsymonds/chronotriage/internal/config"
	"github.com/joshsymonds/chronotriage/internal/filter"
	"github.com/joshsymonds/chronotriage/internal/labels"
	"github.com/joshsymonds/chronotriage/internal/runtime"
	"github.com/joshsymonds/chronotriage/internal/settings"
	"github.com/joshsymonds/chronotriage/internal/sweep"
	"github.com/joshsymonds/chronotriage/internal/triage"
)

type runConfig struct {
	configPath string
	prefix     string
	dbPath     string
	workers    int
	pageSize   int
	rps        int
	dryRun     bool
	skipSweep  bool
	trace      bool
	watch      bool
	interval   time.Duration
	logLevel   string
	logFormat  string
}

func main() {
	cfg := parseRunFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("chronotriage-run failed", "error", err)
		os.Exit(1)
	}
}

func parseRunFlags() runConfig {
	defaultPath, err := config.Path()
	if err != nil {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "chronotriage config file")
	prefix := flag.String("prefix", "", "label prefix (overrides config)")
	dbPath := flag.String("db", "", "settings database (overrides config)")
	workers := flag.Int("workers", 0, "concurrent thread workers (overrides config)")
	pageSize := flag.Int("page-size", 0, "Gmail list page size (overrides config)")
	rps := flag.Int("rps", 0, "max requests per second (overrides config)")
	dryRun := flag.Bool("dry-run", false, "sweep reports due queues without moving threads")
	skipSweep := flag.Bool("skip-sweep", false, "only process unprocessed mail")
	traceSpans := flag.Bool("trace", false, "write triage and sweep spans to stderr as JSON")
	watch := flag.Bool("watch", false, "keep running, reloading the config when it changes")
	interval := flag.Duration("interval", 5*time.Minute, "time between runs with -watch")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	logFormat := flag.String("log-format", "", "text or json (overrides config)")
	flag.Parse()

	return runConfig{
		configPath: *configPath,
		prefix:     *prefix,
		dbPath:     *dbPath,
		workers:    *workers,
		pageSize:   *pageSize,
		rps:        *rps,
		dryRun:     *dryRun,
		skipSweep:  *skipSweep,
		trace:      *traceSpans,
		watch:      *watch,
		interval:   *interval,
		logLevel:   *logLevel,
		logFormat:  *logFormat,
	}
}

// overlay applies flags that were set on top of the file config.
func (rc runConfig) overlay(cfg config.Config) config.Config {
	if rc.prefix != "" {
		cfg.Prefix = rc.prefix
	}
	if rc.dbPath != "" {
		cfg.DBPath = rc.dbPath
	}
	if rc.workers > 0 {
		cfg.Workers = rc.workers
	}
	if rc.pageSize > 0 {
		cfg.PageSize = rc.pageSize
	}
	if rc.rps > 0 {
		cfg.RPS = rc.rps
	}
	if rc.logLevel != "" {
		cfg.Log.Level = rc.logLevel
	}
	if rc.logFormat != "" {
		cfg.Log.Format = rc.logFormat
	}
	return cfg
}

func run(rc runConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fileCfg, err := config.Load(rc.configPath)
	if err != nil {
		return err
	}
	cfg := rc.overlay(fileCfg)
	logger := runtime.NewLogger(cfg.Log.Level, cfg.Log.Format)

	if !rc.watch {
		return once(ctx, rc, cfg, logger)
	}

	var (
		mu      sync.Mutex
		current = cfg
	)
	go func() {
		err := config.Watch(ctx, rc.configPath, time.Second, logger, func(next config.Config) {
			mu.Lock()
			current = rc.overlay(next)
			mu.Unlock()
		})
		if err != nil {
			logger.Warn("config watch stopped", "error", err)
		}
	}()

	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()
	for {
		mu.Lock()
		snapshot := current
		mu.Unlock()
		if err := once(ctx, rc, snapshot, logger); err != nil {
			logger.Error("run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// once performs one triage pass followed by one scheduler sweep.
func once(ctx context.Context, rc runConfig, cfg config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	client, stop, err := runtime.NewGmailClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}
	defer stop()

	store, err := settings.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stored, err := store.Filters(ctx)
	if err != nil {
		return err
	}
	rules, findings := filter.Compile(stored)
	for _, f := range findings {
		logger.Warn("skipping filter", "index", f.Index, "label", f.Label, "reason", f.Reason)
	}
	queues, err := store.Queues(ctx)
	if err != nil {
		return err
	}

	var processors []sdktrace.SpanProcessor
	if rc.trace {
		proc, err := runtime.WriterSpanProcessor(os.Stderr)
		if err != nil {
			return err
		}
		processors = append(processors, proc)
	}
	tracer, shutdown := runtime.NewTracerProvider(processors...)
	defer func() { _ = shutdown(context.Background()) }()

	registry := labels.NewRegistry(client, labels.NewNames(cfg.Prefix), logger)
	proc := &triage.Processor{
		Client:             client,
		Registry:           registry,
		Rules:              rules,
		Queues:             queues,
		Sink:               triage.LogSink{Logger: logger},
		Ranks:              cfg.Priority.Ranks,
		ScanTags:           cfg.Priority.ScanTags,
		AutoresponderLabel: cfg.AutoresponderLabel,
		Logger:             logger,
		Tracer:             tracer,
		Workers:            cfg.Workers,
		PageSize:           cfg.PageSize,
		Clock:              time.Now,
	}
	stats, err := proc.ProcessMail(ctx)
	if err != nil {
		return fmt.Errorf("process mail: %w", err)
	}

	var rep sweep.Report
	if !rc.skipSweep {
		svc := sweep.NewService(client, registry, store, logger)
		svc.Tracer = tracer
		svc.Location = loc
		svc.PageSize = cfg.PageSize
		svc.DryRun = rc.dryRun
		rep, err = svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("run sweep: %w", err)
		}
	}

	if stats.Processed+stats.Failed == 0 && rep.Total() == 0 {
		return nil
	}
	return store.RecordRun(ctx, settings.Run{
		ID:         stats.RunID,
		StartedAt:  stats.StartedAt,
		FinishedAt: time.Now(),
		Processed:  stats.Processed,
		Failed:     stats.Failed,
		Dequeued:   rep.Total(),
		PerLabel:   stats.PerLabel,
	})
}
