// Package config loads dashdeck settings from dashdeck.yml and DASHDECK_ environment variables
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joeblew999/dashdeck/internal/export"
	"github.com/joeblew999/dashdeck/internal/processor"
	"github.com/joeblew999/dashdeck/pkg/document"
	"github.com/joeblew999/dashdeck/pkg/pipeline"
)

// Config holds all settings. It maps directly to the structure of dashdeck.yml.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Storage struct {
		// Dir receives finished documents
		Dir string `mapstructure:"dir"`
		// Themes is where theme files are looked up
		Themes string `mapstructure:"themes"`
	} `mapstructure:"storage"`
	KV struct {
		// Path of the badger directory; empty keeps job status in memory
		Path string `mapstructure:"path"`
	} `mapstructure:"kv"`
	Render struct {
		Width      int    `mapstructure:"width"`
		Height     int    `mapstructure:"height"`
		Background string `mapstructure:"background"`
		Foreground string `mapstructure:"foreground"`
		// Theme is a decksh file placed on every slide
		Theme string `mapstructure:"theme"`
	} `mapstructure:"render"`
	Capture struct {
		Backend    string        `mapstructure:"backend"`
		Settle     time.Duration `mapstructure:"settle"`
		Timeout    time.Duration `mapstructure:"timeout"`
		Scale      float64       `mapstructure:"scale"`
		ChromePath string        `mapstructure:"chrome_path"`
	} `mapstructure:"capture"`
	Document struct {
		PageSize      string `mapstructure:"page_size"`
		MaxImageWidth int    `mapstructure:"max_image_width"`
	} `mapstructure:"document"`
	Export struct {
		Concurrency int `mapstructure:"concurrency"`
	} `mapstructure:"export"`
	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	def := processor.DefaultConfig()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.dir", "./exports")
	v.SetDefault("storage.themes", ".")
	v.SetDefault("kv.path", "")
	v.SetDefault("render.width", def.Width)
	v.SetDefault("render.height", def.Height)
	v.SetDefault("render.background", def.Background)
	v.SetDefault("render.foreground", def.Foreground)
	v.SetDefault("render.theme", "")
	v.SetDefault("capture.backend", string(pipeline.BackendRaster))
	v.SetDefault("capture.settle", pipeline.DefaultSettle)
	v.SetDefault("capture.timeout", pipeline.DefaultTimeout)
	v.SetDefault("capture.scale", 1.0)
	v.SetDefault("capture.chrome_path", "")
	v.SetDefault("document.page_size", string(document.A4))
	v.SetDefault("document.max_image_width", 0)
	v.SetDefault("export.concurrency", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads the config file at path, or dashdeck.yml in the working directory
// when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dashdeck")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	}

	// DASHDECK_CAPTURE_SETTLE overrides capture.settle
	v.SetEnvPrefix("DASHDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a job
func (c *Config) Validate() error {
	if _, err := document.ParsePageSize(c.Document.PageSize); err != nil {
		return fmt.Errorf("document.page_size: %w", err)
	}
	switch pipeline.Backend(c.Capture.Backend) {
	case pipeline.BackendRaster, pipeline.BackendChrome:
	default:
		return fmt.Errorf("capture.backend: unknown backend %q", c.Capture.Backend)
	}
	if c.Capture.Settle < 0 || c.Capture.Timeout < 0 {
		return errors.New("capture.settle and capture.timeout must not be negative")
	}
	if c.Export.Concurrency < 1 {
		return fmt.Errorf("export.concurrency must be at least 1, got %d", c.Export.Concurrency)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size %dx%d is empty", c.Render.Width, c.Render.Height)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// RendererConfig returns the slide renderer settings; theme is already expanded markup
func (c *Config) RendererConfig(theme []byte) processor.Config {
	return processor.Config{
		Width:      c.Render.Width,
		Height:     c.Render.Height,
		Background: c.Render.Background,
		Foreground: c.Render.Foreground,
		Theme:      theme,
	}
}

// CaptureOptions returns the capture stage settings
func (c *Config) CaptureOptions() pipeline.Options {
	return pipeline.Options{
		Backend:    pipeline.Backend(c.Capture.Backend),
		Settle:     c.Capture.Settle,
		Timeout:    c.Capture.Timeout,
		Scale:      c.Capture.Scale,
		ChromePath: c.Capture.ChromePath,
	}
}

// ExportOptions returns the per-job controller settings
func (c *Config) ExportOptions(logger *slog.Logger) export.Options {
	return export.Options{
		PageSize:      document.PageSize(c.Document.PageSize),
		MaxImageWidth: c.Document.MaxImageWidth,
		Concurrency:   c.Export.Concurrency,
		Logger:        logger,
	}
}
