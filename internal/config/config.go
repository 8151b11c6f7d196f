package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Recognition RecognitionConfig
	Extractor   ExtractorConfig
	Database    DatabaseConfig
	Server      ServerConfig
	Models      ModelsConfig
}

type RecognitionConfig struct {
	MinSimilarity float64 // acceptance threshold for recognition (default 0.80, inclusive)
	TopK          int     // candidates fetched by the match query (default 3)
}

type ExtractorConfig struct {
	URL       string // embedding sidecar base URL (default http://localhost:8000)
	Model     string // extractor model identifier (default buffalo_l)
	Dim       int    // embedding dimension, defaults to the model profile's dim
	DetWidth  int    // detector input width (default 640)
	DetHeight int    // detector input height (default 640)
	Serialize bool   // serialize extractor calls through one mutex (default true)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	EnableIndex  bool   // Build the in-memory HNSW index at startup (default false)
}

type ServerConfig struct {
	WorkerPool int // maximum concurrently handled requests (default 10)
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

// ModelProfile describes a known extractor model.
type ModelProfile struct {
	Dim     int `yaml:"dim"`
	DetSize int `yaml:"det_size"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean.
// Returns the default value if the env var is unset, empty, or invalid.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	model := envString("MODEL_NAME", "buffalo_l")
	profile := models.Models[model]
	dim := profile.Dim
	if dim == 0 {
		dim = 512
	}
	detSize := profile.DetSize
	if detSize == 0 {
		detSize = 640
	}

	return &Config{
		Recognition: RecognitionConfig{
			MinSimilarity: envFloat("MIN_SIMILARITY", 0.80),
			TopK:          envInt("MATCH_TOP_K", 3),
		},
		Extractor: ExtractorConfig{
			URL:       envString("EMBEDDING_URL", "http://localhost:8000"),
			Model:     model,
			Dim:       envInt("EMBEDDING_DIM", dim),
			DetWidth:  envInt("DET_SIZE_W", detSize),
			DetHeight: envInt("DET_SIZE_H", detSize),
			Serialize: envBool("EXTRACTOR_SERIALIZE", true),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			EnableIndex:  envBool("FACE_INDEX_ENABLED", false),
		},
		Server: ServerConfig{
			WorkerPool: envInt("WORKER_POOL_SIZE", 10),
		},
		Models: models,
	}
}
