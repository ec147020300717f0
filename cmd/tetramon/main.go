package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radiowatch/tetra-monitor/internal/callsign"
	"github.com/radiowatch/tetra-monitor/internal/config"
	"github.com/radiowatch/tetra-monitor/internal/demo"
	"github.com/radiowatch/tetra-monitor/internal/engine"
	"github.com/radiowatch/tetra-monitor/internal/httpapi"
	"github.com/radiowatch/tetra-monitor/internal/hub"
	"github.com/radiowatch/tetra-monitor/internal/journal"
	"github.com/radiowatch/tetra-monitor/internal/logging"
	"github.com/radiowatch/tetra-monitor/internal/monitor"
	"github.com/radiowatch/tetra-monitor/internal/storage"
)

type flags struct {
	configPath string
	addr       string
	dbPath     string
	logLevel   string
	demoMode   bool
	noDB       bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:           "tetramon",
		Short:         "Reconstructs TETRA network state from the system journal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	root.Flags().StringVar(&f.configPath, "config", "", "path to YAML config file")
	root.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address (overrides config)")
	root.Flags().StringVar(&f.dbPath, "db", "", "sqlite database path (overrides config)")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	root.Flags().BoolVar(&f.demoMode, "demo", false, "generate synthetic traffic instead of tailing the journal")
	root.Flags().BoolVar(&f.noDB, "no-db", false, "disable state persistence")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "tetramon:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.addr != "" {
		cfg.HTTPAddr = f.addr
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.logLevel != "" {
		cfg.LogLevel = config.ParseLogLevel(f.logLevel)
	}

	logger := logging.New(cfg.LogLevel)

	var repo *storage.Repository
	if !f.noDB {
		if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		repo, err = storage.New(ctx, cfg.DBPath, logger)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer repo.Close()
	}

	resolver := callsign.NewResolver(callsign.Config{
		APIURL:  cfg.CallsignAPIURL,
		Timeout: cfg.CallsignTimeout,
		MinID:   cfg.CallsignMinID,
	}, logger)

	svc := monitor.New(engine.Config{
		HistoryLimit:    cfg.HistoryLimit,
		RetuneThreshold: cfg.RetuneThreshold,
	}, resolver, repo, logger)

	wsHub := hub.New(logger, svc.SyncMessages)
	svc.AddSink(wsHub)
	if cfg.EmitStdout {
		svc.AddSink(monitor.NewStreamNotifier(os.Stdout))
	}

	demoMode := f.demoMode || envBool("TETRA_DEMO")
	if !demoMode && !journal.Available() {
		logger.Warn("journalctl not found, falling back to demo traffic")
		demoMode = true
	}

	if demoMode {
		svc.SetMode(monitor.ModeDemo)
	} else {
		svc.SetMode(monitor.ModeJournal)
		if repo != nil {
			if err := svc.LoadPersisted(ctx); err != nil {
				logger.Warn("state restore failed", "err", err)
			}
		}
	}

	svc.EmitStatus()
	svc.EmitFullState()

	sourceErr := make(chan error, 1)
	if demoMode {
		gen := demo.NewGenerator(demo.Config{
			MinInterval: cfg.DemoMinInterval,
			MaxInterval: cfg.DemoMaxInterval,
		}, svc, resolver, logger)
		go func() { sourceErr <- gen.Run(ctx) }()
	} else {
		src := journal.NewSource(logger)
		go func() { sourceErr <- src.Run(ctx, svc.ProcessLine) }()
	}

	api := httpapi.New(svc, wsHub, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr, "mode", svc.Mode())

	serverErr := make(chan error, 1)
	go func() { serverErr <- httpapi.RunServer(ctx, httpServer, logger) }()

	select {
	case err := <-sourceErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("line source failed", "err", err)
			return err
		}
		// The journal stream closed cleanly underneath us; keep serving the
		// last reconstructed state until shutdown.
		err = <-serverErr
		logger.Info("server stopped")
		return err
	case err := <-serverErr:
		if err != nil {
			logger.Error("server terminated with error", "err", err)
			return err
		}
		logger.Info("server stopped")
		return nil
	}
}

func envBool(key string) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && value
}
