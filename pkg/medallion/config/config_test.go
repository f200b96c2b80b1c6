package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/cognicore/medallion/pkg/medallion/internalerr"
)

func complete() Config {
	cfg := Default()
	cfg.Warehouse.URL = "postgres://etl@localhost/warehouse"
	cfg.Storage.Endpoint = "localhost:9000"
	cfg.Storage.Bucket = "raw"
	cfg.Storage.AccessKey = "minio"
	cfg.Storage.SecretKey = "minio123"
	cfg.Search.Host = "localhost"
	cfg.Search.APIKey = "xyz"
	cfg.Search.Port = 8108
	cfg.Search.Protocol = "http"
	cfg.Search.TimeoutSeconds = 10
	return cfg
}

func TestDefaultsNeedConnections(t *testing.T) {
	err := Default().Validate()
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	for _, name := range []string{"warehouse.url", "storage.bucket", "search.api_key", "search.port", "search.timeout_seconds"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("expected %s in %v", name, err)
		}
	}
	if err := complete().Validate(); err != nil {
		t.Fatalf("complete config: %v", err)
	}
}

func TestSearchSettingsRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Search)
		want   string
	}{
		{"host", func(s *Search) { s.Host = "" }, "search.host is required"},
		{"port", func(s *Search) { s.Port = 0 }, "search.port is required"},
		{"protocol", func(s *Search) { s.Protocol = "" }, "search.protocol is required"},
		{"protocol scheme", func(s *Search) { s.Protocol = "grpc" }, `search.protocol "grpc"`},
		{"api key", func(s *Search) { s.APIKey = "" }, "search.api_key is required"},
		{"timeout", func(s *Search) { s.TimeoutSeconds = 0 }, "search.timeout_seconds is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := complete()
			tt.mutate(&cfg.Search)
			err := cfg.Validate()
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}

	cfg := complete()
	cfg.Search.Protocol = "https"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("https: %v", err)
	}
}

func TestDefaultsLeaveSearchUnset(t *testing.T) {
	s := Default().Search
	if s.Port != 0 || s.Protocol != "" || s.TimeoutSeconds != 0 {
		t.Fatalf("search settings must not default: %+v", s)
	}
}

func TestValidateRanges(t *testing.T) {
	cfg := complete()
	cfg.Warehouse.Driver = "oracle"
	cfg.Pipeline.CalendarStartYear = 2030
	cfg.Pipeline.Workers = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"oracle", "inverted", "workers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medallion.yaml")
	data := `
warehouse:
  driver: sqlite
  url: /tmp/wh.db
search:
  host: ts.internal
  port: 443
  protocol: https
pipeline:
  workers: 2
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Warehouse.Driver != "sqlite" || cfg.Search.Port != 443 || cfg.Pipeline.Workers != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Pipeline.CalendarStartYear != 2023 || cfg.Pipeline.HeaderToken != "provider_name" {
		t.Fatalf("defaults lost: %+v", cfg.Pipeline)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyViperEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/warehouse")
	t.Setenv("TYPESENSE_PORT", "9108")
	t.Setenv("TYPESENSE_PROTOCOL", "https")
	t.Setenv("TYPESENSE_TIMEOUT", "30")
	t.Setenv("STORAGE_USE_SSL", "true")

	v := viper.New()
	if err := BindEnv(v); err != nil {
		t.Fatal(err)
	}
	v.Set("pipeline.workers", 6)

	cfg := Default()
	cfg.ApplyViper(v)
	if cfg.Warehouse.URL != "postgres://env/warehouse" {
		t.Errorf("url = %q", cfg.Warehouse.URL)
	}
	if cfg.Search.Port != 9108 || !cfg.Storage.UseSSL || cfg.Pipeline.Workers != 6 {
		t.Errorf("unexpected overlay %+v", cfg)
	}
	if cfg.Search.Protocol != "https" || cfg.Search.Timeout() != 30*time.Second {
		t.Errorf("unexpected search overlay %+v", cfg.Search)
	}
	if cfg.Warehouse.Driver != "postgres" {
		t.Errorf("unset key overwritten: %q", cfg.Warehouse.Driver)
	}
}

func TestLogger(t *testing.T) {
	if _, err := (Log{Level: "debug", Development: true}).Logger(); err != nil {
		t.Fatalf("Logger: %v", err)
	}
	if _, err := (Log{Level: "loud"}).Logger(); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
