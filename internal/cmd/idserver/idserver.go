// Package idserver wires configuration, storage, tracing, and the HTTP
// server into a runnable identity service.
package idserver

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/silvermint/idserver/internal/platform/config"
	"github.com/silvermint/idserver/internal/platform/otel"
	"github.com/silvermint/idserver/internal/server"
	"github.com/silvermint/idserver/internal/storage/sqlite"
)

const shutdownGrace = 10 * time.Second

// Flags holds command-line arguments.
type Flags struct {
	ConfigPath string
}

// ParseFlags parses command-line flags.
func ParseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.ConfigPath, "config", "", "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return flags, nil
}

// Run starts the identity server and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, flags Flags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}

	shutdownTracing, err := otel.Setup(ctx, "silvermint-idserver", cfg.TracingEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	srv := server.New(store, server.Options{SessionTTL: cfg.SessionExpiry.Duration})
	if cfg.InitialAdminPassword != "" {
		created, err := srv.EnsureInitialAdmin(ctx,
			cfg.InitialAdminName, cfg.InitialAdminEmail, cfg.InitialAdminPassword)
		if err != nil {
			return err
		}
		if !created {
			log.Print("admins already present, skipping bootstrap")
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
