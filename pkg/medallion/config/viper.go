package config

import (
	"github.com/spf13/viper"
)

// envBindings maps configuration keys onto environment variables.
var envBindings = map[string]string{
	"warehouse.driver":       "WAREHOUSE_DRIVER",
	"warehouse.url":          "DATABASE_URL",
	"storage.endpoint":       "STORAGE_ENDPOINT",
	"storage.bucket":         "STORAGE_BUCKET",
	"storage.prefix":         "STORAGE_PREFIX",
	"storage.access_key":     "STORAGE_ACCESS_KEY",
	"storage.secret_key":     "STORAGE_SECRET_KEY",
	"storage.region":         "STORAGE_REGION",
	"storage.use_ssl":        "STORAGE_USE_SSL",
	"search.host":            "TYPESENSE_HOST",
	"search.port":            "TYPESENSE_PORT",
	"search.protocol":        "TYPESENSE_PROTOCOL",
	"search.api_key":         "TYPESENSE_API_KEY",
	"search.timeout_seconds": "TYPESENSE_TIMEOUT",
	"pipeline.workers":       "PIPELINE_WORKERS",
	"pipeline.schedule":      "PIPELINE_SCHEDULE",
	"pipeline.ops_address":   "OPS_ADDRESS",
	"log.level":              "LOG_LEVEL",
}

// BindEnv registers the environment variable of every known key on v.
func BindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// ApplyViper overlays every key set on v (by flag, environment or file)
// onto c.
func (c *Config) ApplyViper(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str("warehouse.driver", &c.Warehouse.Driver)
	str("warehouse.url", &c.Warehouse.URL)
	num("warehouse.max_open_conns", &c.Warehouse.MaxOpenConns)

	str("storage.endpoint", &c.Storage.Endpoint)
	str("storage.bucket", &c.Storage.Bucket)
	str("storage.prefix", &c.Storage.Prefix)
	str("storage.access_key", &c.Storage.AccessKey)
	str("storage.secret_key", &c.Storage.SecretKey)
	str("storage.region", &c.Storage.Region)
	flag("storage.use_ssl", &c.Storage.UseSSL)

	str("search.host", &c.Search.Host)
	num("search.port", &c.Search.Port)
	str("search.protocol", &c.Search.Protocol)
	str("search.api_key", &c.Search.APIKey)
	num("search.timeout_seconds", &c.Search.TimeoutSeconds)

	num("pipeline.calendar_start_year", &c.Pipeline.CalendarStartYear)
	num("pipeline.calendar_end_year", &c.Pipeline.CalendarEndYear)
	num("pipeline.workers", &c.Pipeline.Workers)
	flag("pipeline.refresh_views", &c.Pipeline.RefreshViews)
	str("pipeline.header_token", &c.Pipeline.HeaderToken)
	str("pipeline.schedule", &c.Pipeline.Schedule)
	str("pipeline.ops_address", &c.Pipeline.OpsAddress)

	str("log.level", &c.Log.Level)
	flag("log.development", &c.Log.Development)
}
