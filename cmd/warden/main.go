// ABOUTME: Entry point for synapse-warden
// ABOUTME: Reconciles Mjolnir enablement against a Synapse deployment and serves status

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/synapse-warden/internal/config"
	"github.com/2389/synapse-warden/internal/mjolnir"
	"github.com/2389/synapse-warden/internal/secrets"
	"github.com/2389/synapse-warden/internal/server"
	"github.com/2389/synapse-warden/internal/supervisor"
	"github.com/2389/synapse-warden/internal/synapse"
)

const banner = `
                          _
__      ____ _ _ __ __| | ___ _ __
\ \ /\ / / _' | '__/ _' |/ _ \ '_ \
 \ V  V / (_| | | | (_| |  __/ | | |
  \_/\_/ \__,_|_|  \__,_|\___|_| |_|
`

// getConfigPath returns the path to the warden config file.
// Priority: WARDEN_CONFIG env var > ./warden.yaml > ~/.config/warden/warden.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WARDEN_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("warden.yaml"); err == nil {
		return "warden.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "warden.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "warden", "warden.yaml")
}

func main() {
	// Check for token command
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runToken mints a bearer token for the orchestrator to poll the
// status endpoint with.
func runToken() error {
	_ = godotenv.Load()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is not configured")
	}

	verifier := server.NewJWTVerifier([]byte(cfg.Server.JWTSecret))
	token, err := verifier.Generate("orchestrator", 24*time.Hour)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func run() error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Load .env if present; real env vars take precedence
	_ = godotenv.Load()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Homeserver.LocalURL)
	green.Print("    ▶ ")
	fmt.Printf("Server:     %s\n", cfg.Homeserver.ServerName)
	green.Print("    ▶ ")
	fmt.Printf("Mjolnir:    enabled=%t\n", cfg.Mjolnir.Enabled)
	green.Print("    ▶ ")
	fmt.Printf("Interval:   %s\n", cfg.Reconcile.Interval)
	fmt.Println()

	// Setup graceful shutdown context first - all operations should respect it
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := secrets.NewSQLiteStore(cfg.Secrets.Path, logger)
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}
	defer func() { _ = store.Close() }()

	sup := supervisor.NewClient(cfg.Supervisor.SocketPath, logger)
	api := synapse.NewClient(
		cfg.Homeserver.LocalURL,
		cfg.Homeserver.ServerName,
		cfg.Homeserver.RegistrationSharedSecret,
		logger,
	)

	reconciler := mjolnir.New(cfg, sup, store, api, logger)

	if cfg.Secrets.BootstrapAdmin {
		if err := reconciler.BootstrapAdminToken(ctx); err != nil {
			return fmt.Errorf("bootstrapping admin token: %w", err)
		}
	}

	srv := server.New(
		reconciler,
		server.NewJWTVerifier([]byte(cfg.Server.JWTSecret)),
		cfg.Reconcile.Interval,
		logger,
	)

	// Status endpoint is optional; the loop runs either way
	var httpServer *http.Server
	httpErr := make(chan error, 1)
	if cfg.Server.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:    cfg.Server.HTTPAddr,
			Handler: srv.Handler(),
		}
		go func() {
			logger.Info("status endpoint listening", "addr", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	loopDone := make(chan struct{})
	go func() {
		srv.RunLoop(ctx)
		close(loopDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-httpErr:
		cancel()
		<-loopDone
		return fmt.Errorf("status endpoint: %w", err)
	}

	<-loopDone

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status endpoint shutdown", "error", err)
		}
	}

	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
