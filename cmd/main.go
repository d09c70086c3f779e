/*
Package main is the entry point for the linechat server.

It is responsible for loading configuration, initializing the global logging
system, opening the file-backed stores, starting the TCP server and the
optional operational HTTP endpoint, and gracefully handling operating system
interrupt signals (SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"linechat/internal/app/accounts"
	"linechat/internal/app/chat"
	"linechat/internal/app/friends"
	"linechat/internal/app/gm"
	"linechat/internal/app/groups"
	"linechat/internal/app/pm"
	"linechat/internal/app/sessions"
	"linechat/internal/configs"
	"linechat/internal/handler"
	"linechat/internal/pkg/activity"
	"linechat/internal/pkg/logx"
)

func main() {
	// Load configuration from command line arguments and environment
	cfg, err := configs.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Dur("session_timeout", cfg.SessionTimeout).
		Str("data_dir", cfg.DataDir).
		Msg("Configuration loaded successfully")

	deps, err := buildDeps(cfg)
	if err != nil {
		logx.Error(err, "Failed to initialize stores")
		os.Exit(1)
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := handler.NewRouter(deps)
	server := chat.NewServer(fmt.Sprintf(":%d", cfg.Port), router)

	// Bind before announcing startup; a taken port is exit status 1.
	if err := server.Listen(); err != nil {
		logx.Error(err, "Server failed to start")
		os.Exit(1)
	}

	deps.Activity.Logf("server started on port %d", cfg.Port)

	go server.Serve()

	var opsServer *http.Server
	if cfg.OpsAddr != "" {
		opsServer = &http.Server{
			Addr:         cfg.OpsAddr,
			Handler:      handler.OpsRouter(deps),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			logx.Info(fmt.Sprintf("Ops endpoint listening on %s", cfg.OpsAddr))
			if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Error(err, "Ops endpoint failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	if opsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Ops endpoint forced to shutdown")
		}
	}

	server.Shutdown()
	deps.Activity.Logf("server stopped")

	logx.Info("Server gracefully stopped.")
}

// buildDeps creates the data directory and opens every store.
func buildDeps(cfg *configs.AppConfig) (*handler.AppDeps, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	accountStore, err := accounts.NewStore(filepath.Join(cfg.DataDir, "users.db"))
	if err != nil {
		return nil, err
	}

	groupStore, err := groups.NewStore(
		filepath.Join(cfg.DataDir, "groups.db"),
		filepath.Join(cfg.DataDir, "group_members.db"),
		accountStore,
	)
	if err != nil {
		return nil, err
	}

	pmStore, err := pm.NewStore(filepath.Join(cfg.DataDir, "pm"), accountStore)
	if err != nil {
		return nil, err
	}

	gmStore, err := gm.NewStore(filepath.Join(cfg.DataDir, "gm"), accountStore, groupStore)
	if err != nil {
		return nil, err
	}

	return &handler.AppDeps{
		Config:   cfg,
		Accounts: accountStore,
		Sessions: sessions.NewRegistry(cfg.SessionTimeout),
		Friends:  friends.NewStore(filepath.Join(cfg.DataDir, "friends.db"), accountStore),
		Groups:   groupStore,
		PM:       pmStore,
		GM:       gmStore,
		Activity: activity.NewSink(filepath.Join(cfg.DataDir, "server.log")),
	}, nil
}
