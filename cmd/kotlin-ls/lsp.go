package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tomatitito/kotlin-analyzer/internal/config"
	"github.com/tomatitito/kotlin-analyzer/internal/dispatch"
	"github.com/tomatitito/kotlin-analyzer/internal/document"
	"github.com/tomatitito/kotlin-analyzer/internal/logging"
	"github.com/tomatitito/kotlin-analyzer/internal/lsp"
	"github.com/tomatitito/kotlin-analyzer/internal/sidecar"
	"github.com/tomatitito/kotlin-analyzer/internal/watch"
)

// newLSPCommand creates the explicit lsp subcommand. Running the bare
// binary does the same thing, which is what editors typically invoke.
func newLSPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the Kotlin Language Server Protocol (LSP) server.

The server communicates via JSON-RPC over stdin/stdout and supervises
a JVM analyzer subprocess that performs the semantic work. It is
typically started automatically by your editor/IDE.`,
		Args: cobra.NoArgs,
		RunE: runLSP,
	}
}

func runLSP(cmd *cobra.Command, args []string) error {
	logger, flush, err := logging.Build(logging.Options{Level: flagLogLevel, File: flagLogFile})
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	defer flush()

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	store := document.NewStore()

	// The current project context is swapped atomically on config
	// reload; each analyzer spawn reads the latest value.
	var ctxMu sync.Mutex
	projectCtx := cfg.Context(root)
	contextFn := func() config.ProjectContext {
		ctxMu.Lock()
		defer ctxMu.Unlock()
		return projectCtx
	}

	// The server is created after the supervisor and manager but both
	// push into it, so the callbacks indirect through this pointer.
	var server *lsp.Server

	sup := sidecar.New(sidecar.Options{
		Command:           cfg.SidecarCommand(projectCtx.JDKHome),
		Dir:               root,
		InitTimeout:       cfg.Sidecar.InitTimeout,
		HeartbeatInterval: cfg.Sidecar.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Sidecar.HeartbeatTimeout,
	}, contextFn, store, logger, func(level, message string) {
		if server != nil {
			server.ForwardLogMessage(level, message)
		}
	})

	manager := dispatch.NewManager(dispatch.Options{
		Debounce:      cfg.Editor.DebounceDelay,
		QueueCapacity: cfg.Editor.QueueCapacity,
	}, sup, store, logger, func(uri string, version int32, diags []sidecar.Diagnostic) {
		if server != nil {
			server.PublishDiagnostics(uri, version, diags)
		}
	})

	// Configuration changes that alter the project context force an
	// analyzer restart; other settings are read at startup only.
	reload := func() {
		newCfg, err := config.Load(root)
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		newCtx := newCfg.Context(root)
		ctxMu.Lock()
		changed := !projectCtx.Equal(newCtx)
		if changed {
			projectCtx = newCtx
		}
		ctxMu.Unlock()
		if changed {
			logger.Info("project context changed; restarting analyzer")
			sup.Reconfigure()
		}
	}

	server = lsp.NewServer(lsp.Options{
		Store:          store,
		Manager:        manager,
		Supervisor:     sup,
		Logger:         logger,
		OnConfigChange: reload,
	})

	watcher, err := watch.NewConfigWatcher(root, []string{"kotlin-ls.yml", "kotlin-ls.yaml"}, logger, reload)
	if err != nil {
		logger.Warn("config watching disabled", zap.Error(err))
	} else if err := watcher.Start(); err != nil {
		logger.Warn("config watching disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	// The analyzer child must never outlive the frontend, whatever the
	// exit path.
	defer sup.Kill()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received; shutting down")
		cancel()
	}()

	code := server.Run(ctx)

	manager.Shutdown()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn("analyzer shutdown incomplete", zap.Error(err))
	}

	flush()
	os.Exit(code)
	return nil
}
