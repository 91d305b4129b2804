package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for Swell
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Catalog CatalogConfig
	Engine  EngineConfig
	Latest  LatestConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

// StorageConfig selects where segment files are fetched from.
type StorageConfig struct {
	Backend   string // local, s3, azure
	LocalPath string // Root directory holding REALTIME/ and ARCHIVE/ subtrees
	// S3/MinIO configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	S3AccessKey string // AWS access key (or use AWS_ACCESS_KEY_ID env var)
	S3SecretKey string // AWS secret key (or use AWS_SECRET_ACCESS_KEY env var)
	S3UseSSL    bool   // Use HTTPS for S3 connections
	S3PathStyle bool   // Use path-style addressing (required for MinIO)
	// Azure Blob Storage configuration
	AzureConnectionString   string // Connection string (simplest auth method)
	AzureAccountName        string // Storage account name
	AzureAccountKey         string // Storage account key
	AzureSASToken           string // SAS token for scoped access
	AzureContainer          string // Container name
	AzureEndpoint           string // Custom endpoint (for Azurite testing)
	AzureUseManagedIdentity bool   // Use managed identity (Azure-hosted deployments)
}

// CatalogConfig covers segment discovery and the modification index.
type CatalogConfig struct {
	Domain      string // THREDDS catalog domain for remote discovery
	ManifestURL string // By-date-modified hash manifest URL
	IndexPath   string // SQLite database tracking file hashes and mod times
}

// EngineConfig tunes the query engine.
type EngineConfig struct {
	MaxDeployments    int    // Hard cap on the archive deployment chain scan
	DefaultQualitySet string // Quality set used when a request names none
	DefaultWindowDays int    // Window size for requests without an explicit range
}

// LatestConfig controls the latest-observations snapshot refresher.
type LatestConfig struct {
	Enabled  bool
	Schedule string // Cron schedule for snapshot refresh
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("SWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("swell")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/swell/")
	v.AddConfigPath("$HOME/.swell/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			LocalPath:   v.GetString("storage.local_path"),
			S3Bucket:    v.GetString("storage.s3_bucket"),
			S3Region:    v.GetString("storage.s3_region"),
			S3Endpoint:  v.GetString("storage.s3_endpoint"),
			S3AccessKey: v.GetString("storage.s3_access_key"),
			S3SecretKey: v.GetString("storage.s3_secret_key"),
			S3UseSSL:    v.GetBool("storage.s3_use_ssl"),
			S3PathStyle: v.GetBool("storage.s3_path_style"),
			// Azure Blob Storage
			AzureConnectionString:   v.GetString("storage.azure_connection_string"),
			AzureAccountName:        v.GetString("storage.azure_account_name"),
			AzureAccountKey:         v.GetString("storage.azure_account_key"),
			AzureSASToken:           v.GetString("storage.azure_sas_token"),
			AzureContainer:          v.GetString("storage.azure_container"),
			AzureEndpoint:           v.GetString("storage.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("storage.azure_use_managed_identity"),
		},
		Catalog: CatalogConfig{
			Domain:      v.GetString("catalog.domain"),
			ManifestURL: v.GetString("catalog.manifest_url"),
			IndexPath:   v.GetString("catalog.index_path"),
		},
		Engine: EngineConfig{
			MaxDeployments:    v.GetInt("engine.max_deployments"),
			DefaultQualitySet: v.GetString("engine.default_quality_set"),
			DefaultWindowDays: v.GetInt("engine.default_window_days"),
		},
		Latest: LatestConfig{
			Enabled:  v.GetBool("latest.enabled"),
			Schedule: v.GetString("latest.schedule"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8520)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_path", "./data/swell")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false) // Use virtual-hosted style by default (set true for MinIO)

	// Catalog defaults
	v.SetDefault("catalog.domain", "http://thredds.cdip.ucsd.edu")
	v.SetDefault("catalog.manifest_url", "http://cdip.ucsd.edu/data_access/metadata/wavecdf_by_datemod.txt")
	v.SetDefault("catalog.index_path", "./data/swell.db")

	// Engine defaults
	v.SetDefault("engine.max_deployments", 99)
	v.SetDefault("engine.default_quality_set", "public")
	v.SetDefault("engine.default_window_days", 3)

	// Latest snapshot defaults
	v.SetDefault("latest.enabled", false)
	v.SetDefault("latest.schedule", "*/30 * * * *")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
