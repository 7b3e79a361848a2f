package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fractalmind-ai/matchvec/internal/field"
	"github.com/fractalmind-ai/matchvec/internal/vectors"
)

const (
	EnvCacheDir      = "MATCHVEC_CACHE_DIR"
	EnvTextBaseURL   = "MATCHVEC_TEXT_BASE_URL"
	EnvBinaryBaseURL = "MATCHVEC_BINARY_BASE_URL"
)

// Config represents the main configuration
type Config struct {
	Cache      *CacheConfig      `yaml:"cache"`
	Sources    *SourcesConfig    `yaml:"sources"`
	Field      *FieldConfig      `yaml:"field"`
	VocabStore *VocabStoreConfig `yaml:"vocabStore"`
}

// CacheConfig contains vector cache settings
type CacheConfig struct {
	Dir                string `yaml:"dir,omitempty"`
	LockTimeoutSeconds int    `yaml:"lockTimeoutSeconds,omitempty"`
	SubwordMemoSize    int    `yaml:"subwordMemoSize,omitempty"`
	Progress           bool   `yaml:"progress"`
}

// SourcesConfig contains download base URLs
type SourcesConfig struct {
	TextBaseURL    string `yaml:"textBaseURL,omitempty"`
	BinaryBaseURL  string `yaml:"binaryBaseURL,omitempty"`
	GloVeBaseURL   string `yaml:"gloveBaseURL,omitempty"`
	WikiVecBaseURL string `yaml:"wikiVecBaseURL,omitempty"`
}

// FieldConfig contains defaults for fields built from the command line
type FieldConfig struct {
	Tokenizer string   `yaml:"tokenizer,omitempty"`
	Lower     bool     `yaml:"lower"`
	InitToken string   `yaml:"initToken,omitempty"`
	EOSToken  string   `yaml:"eosToken,omitempty"`
	FixLength int      `yaml:"fixLength,omitempty"`
	MinFreq   int      `yaml:"minFreq,omitempty"`
	MaxSize   int      `yaml:"maxSize,omitempty"`
	Vectors   []string `yaml:"vectors,omitempty"`
}

// VocabStoreConfig contains the vocabulary database location
type VocabStoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoadConfig loads configuration from file. A missing file yields the
// defaults. Environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyDefaults()
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	src := vectors.DefaultSources()
	return &Config{
		Cache: &CacheConfig{
			LockTimeoutSeconds: 1800,
			SubwordMemoSize:    vectors.DefaultSubwordMemoSize,
			Progress:           true,
		},
		Sources: &SourcesConfig{
			TextBaseURL:    src.TextBaseURL,
			BinaryBaseURL:  src.BinaryBaseURL,
			GloVeBaseURL:   src.GloVeBaseURL,
			WikiVecBaseURL: src.WikiVecBaseURL,
		},
		Field: &FieldConfig{
			Tokenizer: field.TokenizerMoses,
		},
		VocabStore: &VocabStoreConfig{
			Path: "./vocab.db",
		},
	}
}

// VectorSources returns the configured download locations.
func (c *Config) VectorSources() vectors.Sources {
	return vectors.Sources{
		TextBaseURL:    c.Sources.TextBaseURL,
		BinaryBaseURL:  c.Sources.BinaryBaseURL,
		GloVeBaseURL:   c.Sources.GloVeBaseURL,
		WikiVecBaseURL: c.Sources.WikiVecBaseURL,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Cache == nil {
		c.Cache = def.Cache
	}
	if c.Sources == nil {
		c.Sources = def.Sources
	}
	if c.Field == nil {
		c.Field = def.Field
	}
	if c.VocabStore == nil {
		c.VocabStore = def.VocabStore
	}
	if c.Sources.TextBaseURL == "" {
		c.Sources.TextBaseURL = def.Sources.TextBaseURL
	}
	if c.Sources.BinaryBaseURL == "" {
		c.Sources.BinaryBaseURL = def.Sources.BinaryBaseURL
	}
	if c.Sources.GloVeBaseURL == "" {
		c.Sources.GloVeBaseURL = def.Sources.GloVeBaseURL
	}
	if c.Sources.WikiVecBaseURL == "" {
		c.Sources.WikiVecBaseURL = def.Sources.WikiVecBaseURL
	}
	if c.Field.Tokenizer == "" {
		c.Field.Tokenizer = def.Field.Tokenizer
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		c.Cache.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTextBaseURL)); v != "" {
		c.Sources.TextBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBinaryBaseURL)); v != "" {
		c.Sources.BinaryBaseURL = v
	}
}

// Validate checks values that would otherwise fail late, mid-download.
func (c *Config) Validate() error {
	if c.Cache != nil {
		if c.Cache.LockTimeoutSeconds < 0 {
			return fmt.Errorf("cache.lockTimeoutSeconds must not be negative")
		}
		if c.Cache.SubwordMemoSize < 0 {
			return fmt.Errorf("cache.subwordMemoSize must not be negative")
		}
	}
	if c.Sources != nil {
		for key, value := range map[string]string{
			"sources.textBaseURL":    c.Sources.TextBaseURL,
			"sources.binaryBaseURL":  c.Sources.BinaryBaseURL,
			"sources.gloveBaseURL":   c.Sources.GloVeBaseURL,
			"sources.wikiVecBaseURL": c.Sources.WikiVecBaseURL,
		} {
			if err := validateBaseURL(value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	if c.Field != nil {
		if err := validateTokenizer(c.Field.Tokenizer); err != nil {
			return fmt.Errorf("field.tokenizer: %w", err)
		}
		if c.Field.FixLength < 0 || c.Field.MinFreq < 0 || c.Field.MaxSize < 0 {
			return fmt.Errorf("field.fixLength, field.minFreq and field.maxSize must not be negative")
		}
	}
	return nil
}

func validateBaseURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if !strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("URL must end with /")
	}
	return nil
}

func validateTokenizer(id string) error {
	switch {
	case id == field.TokenizerMoses, id == field.TokenizerWhitespace:
		return nil
	case strings.HasPrefix(id, field.TokenizerHFPrefix) && len(id) > len(field.TokenizerHFPrefix):
		return nil
	}
	return fmt.Errorf("unknown tokenizer %q", id)
}
