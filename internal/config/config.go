// Package config loads application configuration and sets up logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Panel   PanelConfig   `yaml:"panel" mapstructure:"panel"`
	Regress RegressConfig `yaml:"regress" mapstructure:"regress"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates and bounds the input panel.
type DataConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	MinYear int    `yaml:"min_year" mapstructure:"min_year"`
	MaxYear int    `yaml:"max_year" mapstructure:"max_year"`
}

// OutputConfig configures the report artifacts.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PanelConfig configures variable construction and the robustness filters.
type PanelConfig struct {
	WinsorLower float64 `yaml:"winsor_lower" mapstructure:"winsor_lower"`
	WinsorUpper float64 `yaml:"winsor_upper" mapstructure:"winsor_upper"`
	MinCityObs  int     `yaml:"min_city_obs" mapstructure:"min_city_obs"`
}

// RegressConfig configures estimation.
type RegressConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"` // <=1 runs specs sequentially
}

// StoreConfig configures the optional SQLite results store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // empty disables the store
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RENEWAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.path", "data/2013-2018renewal_empirical.dta")
	v.SetDefault("data.min_year", 0)
	v.SetDefault("data.max_year", 0)
	v.SetDefault("output.dir", "results")
	v.SetDefault("panel.winsor_lower", 0.01)
	v.SetDefault("panel.winsor_upper", 0.99)
	v.SetDefault("panel.min_city_obs", 3)
	v.SetDefault("regress.concurrency", 0)
	v.SetDefault("store.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.Data.Path == "" {
		errs = append(errs, "data.path must be set")
	}
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir must be set")
	}
	if c.Panel.WinsorLower < 0 || c.Panel.WinsorLower >= 1 {
		errs = append(errs, "panel.winsor_lower must be in [0, 1)")
	}
	if c.Panel.WinsorUpper <= 0 || c.Panel.WinsorUpper > 1 {
		errs = append(errs, "panel.winsor_upper must be in (0, 1]")
	}
	if c.Panel.WinsorLower >= c.Panel.WinsorUpper {
		errs = append(errs, "panel.winsor_lower must be below panel.winsor_upper")
	}
	if c.Panel.MinCityObs < 0 {
		errs = append(errs, "panel.min_city_obs must be >= 0")
	}
	if c.Data.MinYear > 0 && c.Data.MaxYear > 0 && c.Data.MinYear > c.Data.MaxYear {
		errs = append(errs, "data.min_year must be <= data.max_year")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
