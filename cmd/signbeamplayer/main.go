package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signbeam/signbeam_player/internal/config"
	"github.com/signbeam/signbeam_player/internal/events"
	"github.com/signbeam/signbeam_player/internal/logging"
	"github.com/signbeam/signbeam_player/internal/server"
	"github.com/signbeam/signbeam_player/internal/telemetry"
	"github.com/signbeam/signbeam_player/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "signbeamplayer",
	Short: "SignBeam Player - Digital signage playback scheduler",
	Long:  "SignBeam Player drives a signage screen: it cycles the assigned playlist, applies scheduling rules, interleaves vendor ads, and preempts for live streams.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the player",
	Long:  "Start the playback director, companion socket listener, and local control API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Str("playlist_id", cfg.PlaylistID).Msg("SignBeam Player starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "signbeam-player",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	srv.StartBackground()

	// A hard restart request exits non-zero so the process supervisor
	// brings the player back up with a clean renderer.
	hardRestart := srv.Bus().Subscribe(events.EventHardRestart)
	defer srv.Bus().Unsubscribe(events.EventHardRestart, hardRestart)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info().Msg("shutting down gracefully...")
	case payload := <-hardRestart:
		reason, _ := payload["reason"].(string)
		logger.Error().Str("reason", reason).Msg("hard restart requested, exiting for supervisor restart")
		exitCode = 2
	case err := <-srv.BackgroundError():
		logger.Error().Err(err).Msg("fatal background failure")
		exitCode = 1
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("SignBeam Player stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}
