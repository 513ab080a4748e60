package config

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Reflex    ReflexConfig    `yaml:"reflex" mapstructure:"reflex"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Runlog    RunlogConfig    `yaml:"runlog" mapstructure:"runlog"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReflexConfig locates the pipeline's inputs and outputs.
type ReflexConfig struct {
	RawRoot              string `yaml:"raw_root" mapstructure:"raw_root"`
	ProcessedRoot        string `yaml:"processed_root" mapstructure:"processed_root"`
	FIPSReferencePath    string `yaml:"fips_reference_path" mapstructure:"fips_reference_path"`
	OutputPath           string `yaml:"output_path" mapstructure:"output_path"`
	Years                []int  `yaml:"years" mapstructure:"years"`
	SkipTransformYears   []int  `yaml:"skip_transform_years" mapstructure:"skip_transform_years"`
	DeleteIntermediates  bool   `yaml:"delete_intermediates" mapstructure:"delete_intermediates"`
	IncludeTerritories   bool   `yaml:"include_territories" mapstructure:"include_territories"`
	IncludeNoncontiguous bool   `yaml:"include_noncontiguous" mapstructure:"include_noncontiguous"`
}

// TransformYears returns the configured years minus the skip list.
func (r ReflexConfig) TransformYears() []int {
	skip := make(map[int]bool, len(r.SkipTransformYears))
	for _, y := range r.SkipTransformYears {
		skip[y] = true
	}
	var out []int
	for _, y := range r.Years {
		if !skip[y] {
			out = append(out, y)
		}
	}
	return out
}

// TransformConfig configures the flow expansion stage.
type TransformConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// RunlogConfig configures the local run log. An empty path disables it.
type RunlogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MetricsConfig configures the Prometheus textfile export. An empty path
// disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// WarehouseConfig configures the optional Postgres load.
type WarehouseConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ReferenceConfig configures where the county reference table is fetched
// from. The file is stored at reflex.fips_reference_path. An empty URL means
// the TIGER national county shapefile of Year.
type ReferenceConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Year        int    `yaml:"year" mapstructure:"year"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("REFLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("reflex.raw_root", "source/ADVAN/cbg")
	v.SetDefault("reflex.processed_root", "source/ADVAN/processed/us-vst")
	v.SetDefault("reflex.fips_reference_path", "resources/fips2021.csv")
	v.SetDefault("reflex.output_path", "data/reflex1.0.csv")
	v.SetDefault("reflex.years", []int{2018, 2019, 2020, 2021, 2022, 2023})
	v.SetDefault("reflex.skip_transform_years", []int{})
	v.SetDefault("reflex.delete_intermediates", true)
	v.SetDefault("reflex.include_territories", false)
	v.SetDefault("reflex.include_noncontiguous", false)
	v.SetDefault("transform.concurrency", 1)
	v.SetDefault("runlog.path", "reflex-runs.db")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("warehouse.database_url", "")
	v.SetDefault("warehouse.batch_size", 50000)
	v.SetDefault("reference.url", "")
	v.SetDefault("reference.year", 2021)
	v.SetDefault("reference.timeout_secs", 300)
	v.SetDefault("reference.max_retries", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "transform":
		errs = append(errs, c.validateTransform()...)
	case "index":
		errs = append(errs, c.validateIndex()...)
	case "run":
		errs = append(errs, c.validateTransform()...)
		errs = append(errs, c.validateIndex()...)
	case "load":
		if c.Reflex.ProcessedRoot == "" {
			errs = append(errs, "reflex.processed_root is required")
		}
		if c.Warehouse.DatabaseURL == "" {
			errs = append(errs, "warehouse.database_url is required")
		}
		if c.Warehouse.BatchSize < 1 {
			errs = append(errs, "warehouse.batch_size must be > 0")
		}
	case "status":
		if c.Runlog.Path == "" {
			errs = append(errs, "runlog.path is required")
		}
	case "reference":
		if c.Reference.Year < 2000 || c.Reference.Year > 2099 {
			errs = append(errs, "reference.year must be within 2000-2099")
		}
		if c.Reflex.FIPSReferencePath == "" {
			errs = append(errs, "reflex.fips_reference_path is required")
		}
		if c.Reference.TimeoutSecs < 1 {
			errs = append(errs, "reference.timeout_secs must be > 0")
		}
	case "serve":
		if c.Runlog.Path == "" {
			errs = append(errs, "runlog.path is required")
		}
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateTransform() []string {
	var errs []string
	if c.Reflex.RawRoot == "" {
		errs = append(errs, "reflex.raw_root is required")
	}
	if c.Reflex.ProcessedRoot == "" {
		errs = append(errs, "reflex.processed_root is required")
	}
	if c.Transform.Concurrency < 1 || c.Transform.Concurrency > 64 {
		errs = append(errs, "transform.concurrency must be between 1 and 64")
	}
	return errs
}

func (c *Config) validateIndex() []string {
	var errs []string
	if c.Reflex.ProcessedRoot == "" {
		errs = append(errs, "reflex.processed_root is required")
	}
	if c.Reflex.FIPSReferencePath == "" {
		errs = append(errs, "reflex.fips_reference_path is required")
	}
	if c.Reflex.OutputPath == "" {
		errs = append(errs, "reflex.output_path is required")
	}
	if len(c.Reflex.Years) == 0 {
		errs = append(errs, "reflex.years is required")
	}
	for _, y := range c.Reflex.Years {
		if y < 2000 || y > 2099 {
			errs = append(errs, "reflex.years must be within 2000-2099")
			break
		}
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
