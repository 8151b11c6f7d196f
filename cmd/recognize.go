package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ege-eker/BiometricCheckIn/internal/config"
	"github.com/ege-eker/BiometricCheckIn/internal/database/postgres"
	"github.com/ege-eker/BiometricCheckIn/internal/match"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Match a single image against the enrolled people",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	imageData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewPersonRepository(pool)
	extractor := buildExtractor(cfg)
	engine := match.NewEngine(repo, cfg.Recognition.MinSimilarity, cfg.Recognition.TopK)
	ctx := context.Background()

	probe, err := extractor.ExtractFace(ctx, imageData)
	if err != nil {
		if errors.Is(err, recognizer.ErrNoFace) {
			return errors.New("no face detected in the image")
		}
		return fmt.Errorf("extract face: %w", err)
	}

	result, err := engine.Match(ctx, probe)
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}
	if result == nil || !result.Accepted {
		fmt.Println("No matching person found")
		return nil
	}

	p := result.Person
	fmt.Printf("Matched: %s %s (person %d)\n", p.Name, p.Surname, p.ID)
	fmt.Printf("  Passport:   %s\n", p.PassportNo)
	fmt.Printf("  Flight:     %s\n", p.FlightNo)
	fmt.Printf("  Similarity: %.4f (raw %.4f, %d agreeing embeddings)\n",
		result.Similarity, result.RawSimilarity, result.GoodMatches)
	return nil
}
