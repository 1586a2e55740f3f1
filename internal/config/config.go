package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable holding an optional TOML file.
// Keys in the file use the environment variable names, in any case; the
// environment wins over the file.
const FileEnv = "DOCRANK_CONFIG"

type Config struct {
	Port string

	// Uploads
	UploadDir      string
	MaxUploadBytes int64
	MaxBatchFiles  int

	// Heading classifier
	ClassifierBackend string // "http" or "rules"
	ClassifierURL     string
	ClassifierTimeout time.Duration
	HeadingLabels     []string

	// Embedder
	EmbedderBackend   string // "openai" or "hash"
	EmbedderURL       string
	EmbedderAPIKey    string
	EmbedderModel     string
	EmbedderTimeout   time.Duration
	EmbedderRPS       float64
	EmbedderMaxTokens int
	HashDimension     int

	// Ranking
	Lambda float64
	TopK   int

	// Pipeline concurrency
	MaxConcurrentParse int
	MaxConcurrentEmbed int

	// Latency stats window
	StatsWindow time.Duration
}

// Load reads the optional config file named by DOCRANK_CONFIG, then the
// environment, filling defaults for anything unset.
func Load() (Config, error) {
	src, err := newSource(os.Getenv(FileEnv))
	if err != nil {
		return Config{}, err
	}
	return src.config(), nil
}

type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	s := source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config file %s: %w", path, err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return s, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		switch v := v.(type) {
		case []any:
			parts := make([]string, len(v))
			for i, p := range v {
				parts[i] = fmt.Sprint(p)
			}
			s.file[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			s.file[strings.ToUpper(k)] = fmt.Sprint(v)
		}
	}
	return s, nil
}

func (s source) config() Config {
	cfg := Config{
		Port: s.envOr("PORT", "5000"),

		UploadDir:      s.envOr("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: s.envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		MaxBatchFiles:  s.envInt("MAX_BATCH_FILES", 10),

		ClassifierBackend: strings.ToLower(s.envOr("CLASSIFIER_BACKEND", "http")),
		ClassifierURL:     s.envOr("CLASSIFIER_URL", "http://localhost:8500/predict"),
		ClassifierTimeout: s.envDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
		HeadingLabels:     s.envList("HEADING_LABELS", []string{"Title", "H1", "H2"}),

		EmbedderBackend:   strings.ToLower(s.envOr("EMBEDDER_BACKEND", "openai")),
		EmbedderURL:       s.envOr("EMBEDDER_URL", ""),
		EmbedderAPIKey:    s.envOr("EMBEDDER_API_KEY", s.envOr("OPENAI_API_KEY", "")),
		EmbedderModel:     s.envOr("EMBEDDER_MODEL", "text-embedding-3-small"),
		EmbedderTimeout:   s.envDuration("EMBEDDER_TIMEOUT", 30*time.Second),
		EmbedderRPS:       s.envFloat("EMBEDDER_RPS", 0),
		EmbedderMaxTokens: s.envInt("EMBEDDER_MAX_TOKENS", 8000),
		HashDimension:     s.envInt("HASH_DIMENSION", 384),

		Lambda: s.envFloat("MMR_LAMBDA", 0.72),
		TopK:   s.envInt("TOP_K", 5),

		MaxConcurrentParse: s.envInt("MAX_CONCURRENT_PARSE", 4),
		MaxConcurrentEmbed: s.envInt("MAX_CONCURRENT_EMBED", 4),

		StatsWindow: s.envDuration("STATS_WINDOW", 1*time.Hour),
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxBatchFiles <= 0 {
		cfg.MaxBatchFiles = 10
	}
	if cfg.MaxConcurrentParse <= 0 {
		cfg.MaxConcurrentParse = 4
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = 4
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	switch c.ClassifierBackend {
	case "http":
		if c.ClassifierURL == "" {
			return fmt.Errorf("CLASSIFIER_URL is required for the http classifier")
		}
	case "rules":
	default:
		return fmt.Errorf("unknown CLASSIFIER_BACKEND %q", c.ClassifierBackend)
	}
	switch c.EmbedderBackend {
	case "openai":
		if c.EmbedderAPIKey == "" && c.EmbedderURL == "" {
			return fmt.Errorf("EMBEDDER_API_KEY or EMBEDDER_URL is required for the openai embedder")
		}
	case "hash":
		if c.HashDimension <= 0 {
			return fmt.Errorf("HASH_DIMENSION must be positive")
		}
	default:
		return fmt.Errorf("unknown EMBEDDER_BACKEND %q", c.EmbedderBackend)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("MMR_LAMBDA must be within [0,1], got %g", c.Lambda)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if len(c.HeadingLabels) == 0 {
		return fmt.Errorf("HEADING_LABELS must name at least one label")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	return nil
}

func (s source) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok && v != ""
}

func (s source) envOr(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return fallback
}

func (s source) envInt(key string, fallback int) int {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) envInt64(key string, fallback int64) int64 {
	if v, ok := s.lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) envFloat(key string, fallback float64) float64 {
	if v, ok := s.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s source) envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := s.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping blanks.
func (s source) envList(key string, fallback []string) []string {
	v, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
