package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nanom-ai/nanom/internal/chat"
	"github.com/nanom-ai/nanom/internal/cloud"
	"github.com/nanom-ai/nanom/internal/config"
	"github.com/nanom-ai/nanom/internal/gemini"
	"github.com/nanom-ai/nanom/internal/logging"
	"github.com/nanom-ai/nanom/internal/store"
	"github.com/nanom-ai/nanom/internal/telemetry"
)

// app bundles the wired pipeline plus everything that needs closing.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	invoker  *gemini.Invoker
	pipeline *chat.Pipeline

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// initConfig loads configuration, honoring the --config flag.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// buildApp wires the full pipeline: logger, metrics, local store, sync
// client, invoker, orchestrator. When the config remembers an account the
// sign-in reconciliation runs before the app is handed back.
func buildApp(ctx context.Context) (*app, error) {
	cfg := initConfig()

	if cfg.APIKey == "" {
		return nil, fmt.Errorf(
			"API key not configured.\n" +
				"Set it via:\n" +
				"  - config file: api_key\n" +
				"  - environment: GEMINI_API_KEY\n" +
				"  - run: nanom init")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	dataDir, err := cfg.DataDirOrDefault()
	if err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		file := cfg.Telemetry.File
		if file == "" {
			file = filepath.Join(dataDir, "metrics.jsonl")
		}
		m, cleanup, err := telemetry.Init(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		metrics = m
		a.closers = append(a.closers, cleanup)
	}

	kv, err := store.OpenSQLiteKV(filepath.Join(dataDir, "local.db"))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.closers = append(a.closers, func() { _ = kv.Close() })

	a.invoker = gemini.NewInvoker(gemini.InvokerConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		SystemInstruction: cfg.SystemInstruction,
		Logger:            logger,
	})
	orch := gemini.NewOrchestrator(a.invoker, logger, metrics)

	cl := cloud.New(cloud.Config{
		BaseURL: cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
		Logger:  logger,
	})

	a.pipeline = chat.NewPipeline(orch, store.NewSessionStore(kv, logger), cl, metrics, logger)
	a.pipeline.LoadLocal()

	if acct := cfg.Account; acct.UserID != "" {
		id := cloud.Identity{UserID: acct.UserID, Email: acct.Email, AccessToken: acct.AccessToken}
		if err := a.pipeline.SignIn(ctx, id); err != nil {
			// Offline is not fatal; keep working from local data.
			logger.Warn("sync sign-in failed, continuing locally", zap.Error(err))
		}
	}

	return a, nil
}
