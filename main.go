package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "cloudflare-exporter",
		Short:         "Prometheus exporter for Cloudflare DNS analytics and firewall events",
		Long:          "Polls the Cloudflare API for one zone every minute and serves the latest DNS and WAF metrics on /metrics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().Int("port", defaultPort, "HTTP port to serve on (overrides SERVICE_PORT)")
	cmd.Flags().String("log-level", "INFO", "Log level (overrides LOG_LEVEL)")
	_ = v.BindPFlag("service_port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cloudflare-exporter version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})
	return cmd
}

func run(ctx context.Context, cfg *Config) error {
	log.SetLevel(cfg.LogLevel)

	keyHint := cfg.AuthKey
	if len(keyHint) > 6 {
		keyHint = keyHint[:6]
	}
	log.Infof("cloudflare-exporter %s: starting scrape service for zone %q using key [%s...]", version, cfg.Zone, keyHint)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := NewSnapshotStore()
	exporter := NewExporter(NewAPIClient(cfg), cfg.Zone, store)

	if err := exporter.Refresh(ctx); err != nil {
		log.WithError(err).Error("Initial refresh failed, serving empty metrics until the next one succeeds")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		exporter.Run(ctx, refreshInterval)
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newServeMux(store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on :%d", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stop()
		<-done
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	<-done
	return err
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
