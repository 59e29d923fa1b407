// Package config loads the process configuration: built-in defaults, then a
// YAML file, then an optional .env file and IRISHNSW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
	"github.com/sanonone/irishnsw/pkg/iris"
	"github.com/sanonone/irishnsw/pkg/logging"
	"github.com/sanonone/irishnsw/pkg/persistence"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. IRISHNSW_INDEX_M.
const EnvPrefix = "IRISHNSW"

// Config is the root configuration.
type Config struct {
	Index   IndexConfig   `yaml:"index" envconfig:"INDEX"`
	Search  SearchConfig  `yaml:"search" envconfig:"SEARCH"`
	Iris    IrisConfig    `yaml:"iris" envconfig:"IRIS"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Log     LogConfig     `yaml:"log" envconfig:"LOG"`
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`
}

// IndexConfig holds the graph construction parameters.
type IndexConfig struct {
	M              int     `yaml:"m" envconfig:"M"`
	Mmax0          int     `yaml:"m_max0" envconfig:"M_MAX0"`
	EfConstruction int     `yaml:"ef_construction" envconfig:"EF_CONSTRUCTION"`
	ML             float64 `yaml:"m_l" envconfig:"M_L"`
	Seed           int64   `yaml:"seed" envconfig:"SEED"` // 0 means time-seeded
}

// SearchConfig holds the query parameters.
type SearchConfig struct {
	K          int     `yaml:"k" envconfig:"K"`
	Ef         int     `yaml:"ef" envconfig:"EF"`
	Threshold  float64 `yaml:"threshold" envconfig:"THRESHOLD"`
	NoiseLevel float64 `yaml:"noise_level" envconfig:"NOISE_LEVEL"`
}

// IrisConfig is the template shape.
type IrisConfig struct {
	Codes       int `yaml:"codes" envconfig:"CODES"`
	Rows        int `yaml:"rows" envconfig:"ROWS"`
	Cols        int `yaml:"cols" envconfig:"COLS"`
	MaxRotation int `yaml:"max_rotation" envconfig:"MAX_ROTATION"`
}

// StorageConfig controls snapshots and the journal.
type StorageConfig struct {
	DataDir      string   `yaml:"data_dir" envconfig:"DATA_DIR"`
	SnapshotFile string   `yaml:"snapshot_file" envconfig:"SNAPSHOT_FILE"`
	Codec        string   `yaml:"codec" envconfig:"CODEC"`
	Journal      bool     `yaml:"journal" envconfig:"JOURNAL"`
	SaveInterval Duration `yaml:"save_interval" envconfig:"SAVE_INTERVAL"` // 0 disables periodic saves
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `yaml:"addr" envconfig:"ADDR"`
	IndexName string `yaml:"index_name" envconfig:"INDEX_NAME"`
}

// DefaultConfig returns the parameters of the biometric demo.
func DefaultConfig() Config {
	dim := iris.DefaultDim()
	h := hnsw.DefaultConfig()
	return Config{
		Index: IndexConfig{
			M:              h.M,
			Mmax0:          h.Mmax0,
			EfConstruction: h.EfConstruction,
			ML:             h.ML,
		},
		Search: SearchConfig{
			K:          5,
			Ef:         64,
			Threshold:  0.36,
			NoiseLevel: 0.30,
		},
		Iris: IrisConfig{
			Codes:       dim.Codes,
			Rows:        dim.Rows,
			Cols:        dim.Cols,
			MaxRotation: iris.DefaultMaxRotation,
		},
		Storage: StorageConfig{
			DataDir:      "data",
			SnapshotFile: "index.snap",
			Codec:        "zstd",
			Journal:      true,
			SaveInterval: Duration(5 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr:      ":9100",
			IndexName: "iris",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults using strict
// parsing. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv loads envFile into the environment when it exists (variables
// already set win) and then applies IRISHNSW_* overrides to cfg.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to apply environment: %w", err)
	}
	return nil
}

// Load is LoadConfig, ApplyEnv and Validate in sequence.
func Load(path, envFile string) (Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg, envFile); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Index.M >= 2, "index.m must be at least 2, got %d", c.Index.M)
	check(c.Index.Mmax0 == 0 || c.Index.Mmax0 >= 1, "index.m_max0 must be positive, got %d", c.Index.Mmax0)
	check(c.Index.EfConstruction >= 1, "index.ef_construction must be positive, got %d", c.Index.EfConstruction)
	check(c.Index.ML > 0, "index.m_l must be positive, got %g", c.Index.ML)

	check(c.Search.K >= 1, "search.k must be positive, got %d", c.Search.K)
	check(c.Search.Ef >= 1, "search.ef must be positive, got %d", c.Search.Ef)
	check(c.Search.Threshold > 0 && c.Search.Threshold <= 1, "search.threshold must be in (0, 1], got %g", c.Search.Threshold)
	check(c.Search.NoiseLevel >= 0 && c.Search.NoiseLevel <= 1, "search.noise_level must be in [0, 1], got %g", c.Search.NoiseLevel)

	if err := c.IrisDim().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("iris: %w", err))
	}
	check(c.Iris.MaxRotation >= 0 && c.Iris.MaxRotation < c.Iris.Cols,
		"iris.max_rotation must be in [0, cols), got %d", c.Iris.MaxRotation)

	if _, err := persistence.ParseCodec(c.Storage.Codec); err != nil {
		errs = append(errs, fmt.Errorf("storage.codec: %w", err))
	}
	check(c.Storage.SnapshotFile != "", "storage.snapshot_file is required")
	check(c.Storage.SaveInterval >= 0, "storage.save_interval must not be negative")

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format must be text or json, got %q", c.Log.Format)

	return errors.Join(errs...)
}

// HNSW returns the graph construction parameters.
func (c Config) HNSW() hnsw.Config {
	return hnsw.Config{
		M:              c.Index.M,
		Mmax0:          c.Index.Mmax0,
		EfConstruction: c.Index.EfConstruction,
		ML:             c.Index.ML,
	}
}

// IrisDim returns the template shape.
func (c Config) IrisDim() iris.Dim {
	return iris.Dim{Codes: c.Iris.Codes, Rows: c.Iris.Rows, Cols: c.Iris.Cols}
}

// UseFastIris switches to the reduced template shape.
func (c *Config) UseFastIris() {
	dim := iris.FastDim()
	c.Iris = IrisConfig{Codes: dim.Codes, Rows: dim.Rows, Cols: dim.Cols, MaxRotation: iris.FastMaxRotation}
}
