package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/ege-eker/BiometricCheckIn/internal/config"
	"github.com/ege-eker/BiometricCheckIn/internal/database"
	"github.com/ege-eker/BiometricCheckIn/internal/database/postgres"
	"github.com/ege-eker/BiometricCheckIn/internal/enroll"
	"github.com/ege-eker/BiometricCheckIn/internal/recognizer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Bulk-enroll people from a YAML manifest",
	Long: `Enroll a batch of people described in a YAML manifest. Each entry lists
the person's details and the image files to extract embeddings from:

  people:
    - name: Jane
      surname: Doe
      age: 34
      nationality: US
      passport_no: X123456
      flight_no: UA12
      images:
        - ./faces/jane-1.jpg
        - ./faces/jane-2.jpg`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("manifest", "", "Path to the YAML manifest (required)")
	registerCmd.MarkFlagRequired("manifest")
}

type manifestPerson struct {
	Name        string   `yaml:"name"`
	Surname     string   `yaml:"surname"`
	Age         int      `yaml:"age"`
	Nationality string   `yaml:"nationality"`
	PassportNo  string   `yaml:"passport_no"`
	FlightNo    string   `yaml:"flight_no"`
	Images      []string `yaml:"images"`
}

type manifest struct {
	People []manifestPerson `yaml:"people"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.People) == 0 {
		return nil, errors.New("manifest lists no people")
	}
	return &m, nil
}

// extractBatch turns image files into embedding vectors. Images with no
// detectable face yield a nil vector so the enrollment saga can skip them.
func extractBatch(ctx context.Context, extractor recognizer.Extractor, paths []string) ([][]float32, error) {
	vectors := make([][]float32, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", path, err)
		}
		embedding, err := extractor.ExtractFace(ctx, data)
		if err != nil {
			if errors.Is(err, recognizer.ErrNoFace) {
				vectors[i] = nil
				continue
			}
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		vectors[i] = embedding
	}
	return vectors, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	m, err := loadManifest(mustGetString(cmd, "manifest"))
	if err != nil {
		return err
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewPersonRepository(pool)
	extractor := buildExtractor(cfg)
	saga := enroll.NewSaga(repo)
	ctx := context.Background()

	bar := progressbar.Default(int64(len(m.People)), "enrolling")

	var enrolled, failed int
	for _, entry := range m.People {
		vectors, err := extractBatch(ctx, extractor, entry.Images)
		if err != nil {
			log.Error("extraction failed", "passport_no", entry.PassportNo, "error", err)
			failed++
			bar.Add(1)
			continue
		}

		summary, err := saga.Enroll(ctx, database.Person{
			Name:        entry.Name,
			Surname:     entry.Surname,
			Age:         entry.Age,
			Nationality: entry.Nationality,
			PassportNo:  entry.PassportNo,
			FlightNo:    entry.FlightNo,
		}, vectors)
		if err != nil {
			log.Error("enrollment failed", "passport_no", entry.PassportNo, "error", err)
			failed++
			bar.Add(1)
			continue
		}

		log.Info("enrolled",
			"person_id", summary.PersonID,
			"passport_no", entry.PassportNo,
			"stored", summary.Stored,
			"images", len(entry.Images),
		)
		enrolled++
		bar.Add(1)
	}

	fmt.Printf("\nDone: %d enrolled, %d failed\n", enrolled, failed)
	if failed > 0 {
		return fmt.Errorf("%d enrollments failed", failed)
	}
	return nil
}
