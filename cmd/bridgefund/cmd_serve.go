package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bridgefund/internal/config"
	"bridgefund/internal/llm"
	"bridgefund/internal/logging"
	"bridgefund/internal/pipeline"
	"bridgefund/internal/projects"
	"bridgefund/internal/prompts"
	"bridgefund/internal/research"
	"bridgefund/internal/server"
	"bridgefund/internal/store"
	"bridgefund/internal/tracing"
)

// runServe wires the process-wide collaborators and serves until SIGINT or
// SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Document store
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store opened", zap.String("driver", st.Driver()), zap.String("path", st.Path()))

	// 2. Generation backend
	client, err := llm.NewClient(ctx, cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()
	traced := llm.Traced(client, cfg.LLM.Provider, cfg.LLM.Model)

	// 3. Prompt catalog, optionally hot-reloaded
	catalog, err := loadCatalog(ctx, cfg.Prompts)
	if err != nil {
		return err
	}

	// 4. Research
	researcher := research.New(research.Config{
		Enabled:            cfg.IsResearchEnabled(),
		BaseURL:            cfg.Research.BaseURL,
		MaxResultsPerClaim: cfg.Research.MaxResultsPerClaim,
		Concurrency:        cfg.Research.Concurrency,
		Timeout:            cfg.GetResearchTimeout(),
	})

	srv := server.New(server.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.GetReadTimeout(),
		WriteTimeout:    cfg.GetWriteTimeout(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		UserHeader:      cfg.Auth.UserHeader,
		AdminRole:       cfg.Auth.AdminRole,
	},
		pipeline.New(traced, catalog),
		projects.NewService(st),
		researcher,
		st,
	)

	logging.Boot("bridgefund %s serving on %s (provider=%s model=%s research=%v)",
		cfg.Version, cfg.Server.Addr, cfg.LLM.Provider, cfg.LLM.Model, researcher.Enabled())
	return srv.ListenAndServe(ctx)
}

// loadCatalog returns the built-in catalog, or the override file's catalog
// with a watcher bound to ctx when configured.
func loadCatalog(ctx context.Context, pc config.PromptsConfig) (*prompts.Catalog, error) {
	if pc.OverridePath == "" {
		return prompts.NewCatalog(), nil
	}

	catalog, err := prompts.NewCatalogFromFile(pc.OverridePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt overrides: %w", err)
	}
	if !pc.Watch {
		return catalog, nil
	}

	w, err := prompts.NewWatcher(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to watch prompt overrides: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, fmt.Errorf("failed to watch prompt overrides: %w", err)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	logging.BootDebug("watching prompt overrides at %s", pc.OverridePath)
	return catalog, nil
}
