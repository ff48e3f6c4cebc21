package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/cuemby/libcrun-shim/pkg/metrics"
	"github.com/spf13/cobra"
)

const serveShutdownTimeout = 15 * time.Second

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop every running container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			return c.facade.Shutdown(ctx)
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete every stopped container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *shimClient) error {
			n, err := c.facade.CleanupStopped(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d stopped container(s)\n", n)
			return nil
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bring up the VM (or containerd backend) and keep it running, serving metrics over HTTP",
	Long: `serve is the long-running counterpart to the one-shot subcommands: it
brings up the VM bridge (or the native containerd backend) once, keeps it
alive, and exposes Prometheus metrics and a liveness probe over HTTP until
it receives SIGINT/SIGTERM, at which point it shuts the backend down
gracefully before exiting.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics and /health on")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the metrics server")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := runtimeConfig(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	client := newShimClient(ctx, cfg)
	defer client.Close(context.Background())
	logPhase(client)

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(client.lifecycle.Phase().String()))
	})
	if pprofEnabled {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}

	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("metrics server exited")
		}
	}()

	log.Logger.Info().Msg("libcrun-shim serve running, waiting for shutdown signal")
	<-ctx.Done()

	log.Logger.Info().Msg("shutdown signal received, stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	if err := client.facade.Shutdown(shutdownCtx); err != nil {
		log.Logger.Warn().Err(err).Msg("facade shutdown reported an error")
	}

	return nil
}
