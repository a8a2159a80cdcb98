package literal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Marker   string      `mapstructure:"marker"`
	Sanitize string      `mapstructure:"sanitize"`
	Log      LogConfig   `mapstructure:"log"`
	Serve    ServeConfig `mapstructure:"serve"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServeConfig struct {
	Addr            string        `mapstructure:"addr"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Marker:   defaultMarker,
		Sanitize: "none",
		Log: LogConfig{
			Level:  "warn",
			Format: "human",
		},
		Serve: ServeConfig{
			Addr:            ":8080",
			PublishInterval: 100 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. LITERAL_* variables
// override both, e.g. LITERAL_LOG_LEVEL. An empty path reads only the
// environment.
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()

	vp := viper.New()
	vp.SetDefault("marker", def.Marker)
	vp.SetDefault("sanitize", def.Sanitize)
	vp.SetDefault("log.level", def.Log.Level)
	vp.SetDefault("log.format", def.Log.Format)
	vp.SetDefault("serve.addr", def.Serve.Addr)
	vp.SetDefault("serve.publish_interval", def.Serve.PublishInterval)

	vp.SetEnvPrefix("literal")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if path != "" {
		vp.SetConfigFile(path)
		vp.SetConfigType("yaml")
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Marker == "" || strings.ContainsAny(c.Marker, " \t\n\f\r\"'>/=") {
		return fmt.Errorf("invalid marker attribute %q", c.Marker)
	}
	if _, err := SanitizerFor(c.Sanitize); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	if c.Serve.PublishInterval < 0 {
		return fmt.Errorf("serve.publish_interval must not be negative")
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	return NewLogger(w, level, c.Log.Format)
}

// Options turns the config into Observer options.
func (c *Config) Options(logger *slog.Logger) ([]Option, error) {
	sanitizer, err := SanitizerFor(c.Sanitize)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithMarker(c.Marker)}
	if sanitizer != nil {
		opts = append(opts, WithSanitizer(sanitizer))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return opts, nil
}
