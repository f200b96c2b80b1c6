// Package config holds the connection and pipeline settings of the service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
)

// Warehouse is the SQL warehouse connection.
type Warehouse struct {
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// Storage is the bucket holding the raw files.
type Storage struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Search is the Typesense node.
type Search struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Protocol       string `yaml:"protocol"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout.
func (s Search) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Pipeline tunes a run.
type Pipeline struct {
	CalendarStartYear int    `yaml:"calendar_start_year"`
	CalendarEndYear   int    `yaml:"calendar_end_year"`
	Workers           int    `yaml:"workers"`
	RefreshViews      bool   `yaml:"refresh_views"`
	HeaderToken       string `yaml:"header_token"`
	// Schedule is a cron expression used by the schedule command.
	Schedule          string `yaml:"schedule"`
	// OpsAddress is where the schedule command serves health and metrics.
	OpsAddress        string `yaml:"ops_address"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the full service configuration.
type Config struct {
	Warehouse Warehouse `yaml:"warehouse"`
	Storage   Storage   `yaml:"storage"`
	Search    Search    `yaml:"search"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Log       Log       `yaml:"log"`
}

// Default returns the settings used when nothing overrides them. Connection
// settings, including every search setting, have no defaults.
func Default() Config {
	return Config{
		Warehouse: Warehouse{Driver: "postgres", MaxOpenConns: 8},
		Storage:   Storage{Region: "us-east-1"},
		Pipeline: Pipeline{
			CalendarStartYear: 2023,
			CalendarEndYear:   2026,
			Workers:           4,
			RefreshViews:      true,
			HeaderToken:       "provider_name",
			Schedule:          "0 2 * * *",
			OpsAddress:        "localhost:9464",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

var drivers = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}

// Validate reports every missing or invalid setting at once.
func (c Config) Validate() error {
	var problems []error
	missing := func(name, value string) {
		if value == "" {
			problems = append(problems, fmt.Errorf("%s is required", name))
		}
	}

	if !drivers[c.Warehouse.Driver] {
		problems = append(problems, fmt.Errorf("warehouse.driver %q is not one of postgres, mysql, sqlite", c.Warehouse.Driver))
	}
	missing("warehouse.url", c.Warehouse.URL)
	missing("storage.endpoint", c.Storage.Endpoint)
	missing("storage.bucket", c.Storage.Bucket)
	missing("storage.access_key", c.Storage.AccessKey)
	missing("storage.secret_key", c.Storage.SecretKey)
	missing("search.host", c.Search.Host)
	missing("search.api_key", c.Search.APIKey)
	if c.Search.Port <= 0 {
		problems = append(problems, fmt.Errorf("search.port is required"))
	}
	switch c.Search.Protocol {
	case "http", "https":
	case "":
		problems = append(problems, fmt.Errorf("search.protocol is required"))
	default:
		problems = append(problems, fmt.Errorf("search.protocol %q is not one of http, https", c.Search.Protocol))
	}
	if c.Search.TimeoutSeconds <= 0 {
		problems = append(problems, fmt.Errorf("search.timeout_seconds is required"))
	}
	if c.Pipeline.CalendarStartYear > c.Pipeline.CalendarEndYear {
		problems = append(problems, fmt.Errorf("pipeline calendar range %d..%d is inverted",
			c.Pipeline.CalendarStartYear, c.Pipeline.CalendarEndYear))
	}
	if c.Pipeline.Workers < 1 {
		problems = append(problems, fmt.Errorf("pipeline.workers must be at least 1"))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, errs.Combine(problems...))
}

// Logger builds the zap logger described by l.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log.level: %v", internalerr.ErrInvalidConfig, err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
