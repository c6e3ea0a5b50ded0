// Package config loads the permitloader command configuration from
// environment variables and .env files.
package config

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"go.nownabe.dev/permitloader"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "PERMITLOADER"

// Warehouses.
const (
	WarehouseMotherDuck = "motherduck"
	WarehouseDuckDB     = "duckdb"
	WarehousePostgres   = "postgres"
	WarehouseBigQuery   = "bigquery"
)

// Secret sources.
const (
	SecretSourceAWS = "aws"
	SecretSourceEnv = "env"
)

type Config struct {
	Warehouse       string `mapstructure:"WAREHOUSE"`
	DuckDBPath      string `mapstructure:"DUCKDB_PATH"`
	PostgresDSN     string `mapstructure:"POSTGRES_DSN"`
	BigQueryProject string `mapstructure:"BIGQUERY_PROJECT"`
	BaseURL         string `mapstructure:"BASE_URL"`
	SecretSource    string `mapstructure:"SECRET_SOURCE"`
	SecretName      string `mapstructure:"SECRET_NAME"`
	AWSRegion       string `mapstructure:"AWS_REGION"`
	LimitNumber     int    `mapstructure:"LIMIT_NUMBER"`
	SampleSize      int    `mapstructure:"SAMPLE_SIZE"`
	LatestSchema    string `mapstructure:"LATEST_SCHEMA"`
	Concurrency     int    `mapstructure:"CONCURRENCY"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	PrettyLogs      bool   `mapstructure:"PRETTY_LOGS"`
	SlackToken      string `mapstructure:"SLACK_TOKEN"`
	SlackChannel    string `mapstructure:"SLACK_CHANNEL"`
	Schedule        string `mapstructure:"SCHEDULE"`
}

var keys = []string{
	"WAREHOUSE", "DUCKDB_PATH", "POSTGRES_DSN", "BIGQUERY_PROJECT", "BASE_URL",
	"SECRET_SOURCE", "SECRET_NAME", "AWS_REGION",
	"LIMIT_NUMBER", "SAMPLE_SIZE", "LATEST_SCHEMA", "CONCURRENCY",
	"LOG_LEVEL", "PRETTY_LOGS", "SLACK_TOKEN", "SLACK_CHANNEL", "SCHEDULE",
}

// New reads the configuration into v. Environment variables win over
// .env.local, which wins over .env. Credential keys (MOTHERDUCK_TOKEN,
// MOTHERDB and SCHEMA_*) are bound too, for the env secret source.
func New(v *viper.Viper) (Config, error) {
	l := log.With().Str("component", "config").Logger()

	v.SetDefault("WAREHOUSE", WarehouseMotherDuck)
	v.SetDefault("BASE_URL", permitloader.DefaultBaseURL)
	v.SetDefault("SECRET_SOURCE", SecretSourceAWS)
	v.SetDefault("SECRET_NAME", "streetmanagerpipeline")
	v.SetDefault("LIMIT_NUMBER", permitloader.DefaultChunkSize)
	v.SetDefault("SAMPLE_SIZE", permitloader.DefaultSampleSize)
	v.SetDefault("LATEST_SCHEMA", permitloader.DefaultLatestSchema)
	v.SetDefault("CONCURRENCY", 1)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCHEDULE", "0 6 2 * *")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			l.Warn().Err(err).Str("env", k).Msg("failed to bind environment variable")
		}
	}
	bindCredentialEnv(v)

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		l.Debug().Err(err).Msg("no .env file")
	}

	v.SetConfigFile(".env.local")
	if err := v.MergeInConfig(); err != nil {
		l.Debug().Err(err).Msg("no .env.local file")
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, xerrors.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func bindCredentialEnv(v *viper.Viper) {
	_ = v.BindEnv("motherduck_token", "MOTHERDUCK_TOKEN")
	_ = v.BindEnv("motherdb", "MOTHERDB")

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "SCHEMA_") {
			_ = v.BindEnv(strings.ToLower(name), name)
		}
	}
}

// Validate checks the values New cannot default.
func (c Config) Validate() error {
	switch c.Warehouse {
	case WarehouseMotherDuck, WarehouseDuckDB, WarehousePostgres:
	case WarehouseBigQuery:
		if c.BigQueryProject == "" {
			return xerrors.New("BIGQUERY_PROJECT is required for the bigquery warehouse")
		}
	default:
		return xerrors.Errorf("unknown warehouse %q", c.Warehouse)
	}

	switch c.SecretSource {
	case SecretSourceAWS:
		if c.SecretName == "" {
			return xerrors.New("SECRET_NAME is required for the aws secret source")
		}
	case SecretSourceEnv:
	default:
		return xerrors.Errorf("unknown secret source %q", c.SecretSource)
	}

	if c.LimitNumber <= 0 {
		return xerrors.Errorf("LIMIT_NUMBER must be positive: %d", c.LimitNumber)
	}
	if c.SampleSize <= 0 {
		return xerrors.Errorf("SAMPLE_SIZE must be positive: %d", c.SampleSize)
	}

	return nil
}
