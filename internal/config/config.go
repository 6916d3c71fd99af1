package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// StorageConfig holds storage backend settings
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// SQLiteConfig holds embedded database settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
}

// SimConfig holds the fixed-step simulation settings
type SimConfig struct {
	TickRate       int           `json:"tickRate" mapstructure:"tickRate"`
	SampleInterval time.Duration `json:"sampleInterval" mapstructure:"sampleInterval"`
}

// StreamingConfig holds the link visual feed settings
type StreamingConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("defaultTag", "career")
	viper.SetDefault("logsDir", "./linkcorelogs")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "linkcore")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.flushInterval", "1s")

	viper.SetDefault("monitor.interval", "5s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "linkcore-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "linkcore")
	viper.SetDefault("otel.batchTimeout", "5s")

	viper.SetDefault("sim.tickRate", 50)
	viper.SetDefault("sim.sampleInterval", "1s")

	viper.SetDefault("streaming.enabled", false)
	viper.SetDefault("streaming.url", "ws://localhost:5001/feed")
	viper.SetDefault("streaming.secret", "")

	viper.SetDefault("archive.enabled", false)
	viper.SetDefault("archive.url", "http://localhost:5000")
	viper.SetDefault("archive.secret", "")

	viper.SetConfigName("linkcore.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
	}
}

// GetSimConfig returns the fixed-step simulation settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate:       viper.GetInt("sim.tickRate"),
		SampleInterval: viper.GetDuration("sim.sampleInterval"),
	}
}

// GetStreamingConfig returns the link visual feed settings.
func GetStreamingConfig() StreamingConfig {
	return StreamingConfig{
		Enabled: viper.GetBool("streaming.enabled"),
		URL:     viper.GetString("streaming.url"),
	}
}
