package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the name of the JSON configuration file looked up in the config dir.
const ConfigFileName = "hardpoint.cfg.json"

// StorageConfig holds storage backend settings
type StorageConfig struct {
	Type                string        `json:"type" mapstructure:"type"` // "postgres", "sqlite" or "memory"
	SqlitePath          string        `json:"sqlitePath" mapstructure:"sqlitePath"`
	DumpPath            string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval        time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	ImportFlushInterval time.Duration `json:"importFlushInterval" mapstructure:"importFlushInterval"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// LoadoutConfig holds loadout workflow settings
type LoadoutConfig struct {
	ConfigurablePositions []string      `json:"configurablePositions" mapstructure:"configurablePositions"`
	StoreTimeout          time.Duration `json:"storeTimeout" mapstructure:"storeTimeout"`
}

// FatigueConfig holds fatigue calculation settings
type FatigueConfig struct {
	DamagePerMission float64 `json:"damagePerMission" mapstructure:"damagePerMission"`
}

// InfluxConfig holds settings for the fatigue snapshot exporter
type InfluxConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	URL           string        `json:"url" mapstructure:"url"`
	Token         string        `json:"token" mapstructure:"token"`
	Org           string        `json:"org" mapstructure:"org"`
	Bucket        string        `json:"bucket" mapstructure:"bucket"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	BackupPath    string        `json:"backupPath" mapstructure:"backupPath"`
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`
}

// MonitorConfig holds the fleet sweep settings
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// GraylogConfig holds the GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./hardpointlogs")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "hardpoint")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./hardpoint.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.importFlushInterval", "2s")

	viper.SetDefault("loadout.configurablePositions", []string{"P1", "P13"})
	viper.SetDefault("loadout.storeTimeout", "5s")

	viper.SetDefault("fatigue.damagePerMission", 5.0)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "fleetops")
	viper.SetDefault("influx.bucket", "launcher_fatigue")
	viper.SetDefault("influx.flushInterval", "10s")
	viper.SetDefault("influx.backupPath", "./launcher_fatigue.lp.gz")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1m")
	viper.SetDefault("monitor.statusFile", "./hardpoint_status.txt")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "hardpoint")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("http.readTimeout", "10s")
	viper.SetDefault("http.shutdownTimeout", "10s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	viper.SetEnvPrefix("HARDPOINT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
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
		Type:                viper.GetString("storage.type"),
		SqlitePath:          viper.GetString("storage.sqlite.path"),
		DumpPath:            viper.GetString("storage.sqlite.dumpPath"),
		DumpInterval:        viper.GetDuration("storage.sqlite.dumpInterval"),
		ImportFlushInterval: viper.GetDuration("storage.importFlushInterval"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetLoadoutConfig returns the loadout workflow settings.
func GetLoadoutConfig() LoadoutConfig {
	return LoadoutConfig{
		ConfigurablePositions: viper.GetStringSlice("loadout.configurablePositions"),
		StoreTimeout:          viper.GetDuration("loadout.storeTimeout"),
	}
}

// GetFatigueConfig returns the fatigue calculation settings.
func GetFatigueConfig() FatigueConfig {
	return FatigueConfig{
		DamagePerMission: viper.GetFloat64("fatigue.damagePerMission"),
	}
}

// GetInfluxConfig returns the fatigue exporter settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		FlushInterval: viper.GetDuration("influx.flushInterval"),
		BackupPath:    viper.GetString("influx.backupPath"),
	}
}

// GetHTTPConfig returns the API server settings.
func GetHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:            viper.GetString("http.addr"),
		ReadTimeout:     viper.GetDuration("http.readTimeout"),
		ShutdownTimeout: viper.GetDuration("http.shutdownTimeout"),
	}
}

// GetMonitorConfig returns the fleet sweep settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
