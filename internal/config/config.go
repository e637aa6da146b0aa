package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/dshauth/platform"
)

type Config struct {
	Port       string
	LogLevel   string
	DBAdapter  string
	SQLiteFile string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	MigrationsDir    string

	// DSH settings
	Platform platform.Platform
	Tenant   string
	APIKey   string
	// AuthURL overrides the REST token endpoint of Platform.
	AuthURL string

	AdminAPIKey             string
	CORSAllowedOrigins      []string
	DefaultRateLimit        int
	UpstreamRetryMaxElapsed time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_adapter", "memory")
	v.SetDefault("sqlite_file", "./data/dsh_devices.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "dsh")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db", "dsh_broker")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("migrations_dir", "./migrations")
	v.SetDefault("dsh_platform", string(platform.NpLz))
	v.SetDefault("dsh_tenant", "")
	v.SetDefault("dsh_api_key", "")
	v.SetDefault("dsh_auth_url", "")
	v.SetDefault("admin_api_key", "")
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("default_rate_limit", 60)
	v.SetDefault("upstream_retry_max_elapsed", "10s")
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}
	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// New reads the configuration from the environment and an optional
// config.yaml in the working directory or /etc/dsh-token-broker.
func New() (*Config, error) {
	return load(viper.New(), platform.Default(), true)
}

// NewDatabase reads the same sources as New but only validates the
// registry settings. It serves tools that never talk to DSH.
func NewDatabase() (*Config, error) {
	return load(viper.New(), platform.Default(), false)
}

func load(v *viper.Viper, platforms platform.Registry, requireDSH bool) (*Config, error) {
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/dsh-token-broker/")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	c := &Config{
		Port:                    v.GetString("port"),
		LogLevel:                strings.ToLower(v.GetString("log_level")),
		DBAdapter:               strings.ToLower(v.GetString("db_adapter")),
		SQLiteFile:              v.GetString("sqlite_file"),
		PostgresDSN:             v.GetString("postgres_dsn"),
		PostgresHost:            v.GetString("postgres_host"),
		PostgresPort:            v.GetString("postgres_port"),
		PostgresUser:            v.GetString("postgres_user"),
		PostgresPassword:        v.GetString("postgres_password"),
		PostgresDB:              v.GetString("postgres_db"),
		PostgresSSLMode:         v.GetString("postgres_sslmode"),
		MigrationsDir:           v.GetString("migrations_dir"),
		Tenant:                  v.GetString("dsh_tenant"),
		APIKey:                  v.GetString("dsh_api_key"),
		AuthURL:                 v.GetString("dsh_auth_url"),
		AdminAPIKey:             v.GetString("admin_api_key"),
		CORSAllowedOrigins:      splitList(v.GetString("cors_allowed_origins")),
		DefaultRateLimit:        v.GetInt("default_rate_limit"),
		UpstreamRetryMaxElapsed: v.GetDuration("upstream_retry_max_elapsed"),
	}

	p, err := platforms.Parse(v.GetString("dsh_platform"))
	if err != nil {
		return nil, fmt.Errorf("DSH_PLATFORM: %w", err)
	}
	c.Platform = p

	switch c.DBAdapter {
	case "memory":
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	default:
		return nil, fmt.Errorf("unknown DB_ADAPTER %q", c.DBAdapter)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}
	if !requireDSH {
		return c, nil
	}

	if c.Tenant == "" {
		return nil, errors.New("DSH_TENANT must be set")
	}
	if c.APIKey == "" {
		return nil, errors.New("DSH_API_KEY must be set")
	}
	if c.AdminAPIKey == "" {
		return nil, errors.New("ADMIN_API_KEY must be set")
	}
	if c.DefaultRateLimit <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT: %d", c.DefaultRateLimit)
	}
	return c, nil
}

// splitList parses a comma separated setting, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// RestTokenURL is where REST tokens are requested.
func (c *Config) RestTokenURL() string {
	if c.AuthURL != "" {
		return c.AuthURL
	}
	return c.Platform.ProtocolRestToken
}
