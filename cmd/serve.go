package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/config"
	"github.com/ege-eker/BiometricCheckIn/internal/database/postgres"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
	"github.com/ege-eker/BiometricCheckIn/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the check-in API server",
	Long: `Start the Biometric Check-In HTTP server.
The server exposes recognition and enrollment endpoints backed by
PostgreSQL and the face extraction service.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// buildExtractor creates the face extraction client, serialized when the
// extraction service cannot handle concurrent requests.
func buildExtractor(cfg *config.Config) recognizer.Extractor {
	var extractor recognizer.Extractor = recognizer.NewClient(cfg.Extractor.URL, cfg.Extractor.Model, cfg.Extractor.Dim)
	if cfg.Extractor.Serialize {
		extractor = recognizer.NewSerialized(extractor)
	}
	return extractor
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	log.Info("connecting to PostgreSQL")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewPersonRepository(pool)

	if cfg.Database.EnableIndex {
		log.Info("building in-memory similarity index")
		if err := repo.EnableIndex(context.Background()); err != nil {
			log.Warn("failed to build similarity index, falling back to PostgreSQL queries", "error", err)
		} else {
			log.Info("similarity index ready", "embeddings", repo.IndexCount())
		}
	}

	extractor := buildExtractor(cfg)
	port, host := resolveServeHostPort(cmd)

	server := web.NewServer(cfg, port, host, repo, extractor, repo)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	log.Info("starting Biometric Check-In API", "host", host, "port", port)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
