package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	APIKeys     []string
	RateLimit   int

	Workspace WorkspaceConfig
	Warehouse WarehouseConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	CacheTTL  time.Duration
}

// WorkspaceConfig locates the workspace API that issues short-lived database
// credentials and runs warehouse statements.
type WorkspaceConfig struct {
	Host         string // e.g. https://my-workspace.cloud.databricks.com
	Token        string // static PAT, used as bearer fallback
	ClientID     string // service principal for the client-credentials flow
	ClientSecret string
	InstanceName string // managed database instance name
}

type WarehouseConfig struct {
	WarehouseID string
	Timeout     time.Duration
	ByteLimit   int64
	Disposition string
}

type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	SSLMode  string
	HostAddr string
	PoolMax  int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		APIKeys:     strings.Split(getEnv("API_KEYS", "demo-key-123"), ","),
		RateLimit:   getEnvAsInt("RATE_LIMIT", 100),
		CacheTTL:    getEnvAsDuration("CACHE_TTL", 5*time.Minute),

		Workspace: WorkspaceConfig{
			Host:         getEnv("DATABRICKS_HOST", ""),
			Token:        getEnv("DATABRICKS_TOKEN", ""),
			ClientID:     getEnv("DATABRICKS_CLIENT_ID", ""),
			ClientSecret: getEnv("DATABRICKS_CLIENT_SECRET", ""),
			InstanceName: getEnv("DATABRICKS_DATABASE_INSTANCE", ""),
		},

		Warehouse: WarehouseConfig{
			WarehouseID: getEnv("DATABRICKS_WAREHOUSE", ""),
			Timeout:     getEnvAsDuration("WAREHOUSE_TIMEOUT", 600*time.Second),
			ByteLimit:   int64(getEnvAsInt("WAREHOUSE_BYTE_LIMIT", 10_000_000)),
			Disposition: getEnv("WAREHOUSE_DISPOSITION", "INLINE"),
		},

		Postgres: PostgresConfig{
			Host:     getEnv("PGHOST", ""),
			Port:     getEnvAsInt("PGPORT", 5432),
			Database: getEnv("PGDATABASE", "databricks_postgres"),
			User:     getEnv("PGUSER", "token"),
			SSLMode:  getEnv("PGSSLMODE", "require"),
			HostAddr: getEnv("PGHOSTADDR", ""),
			PoolMax:  getEnvAsInt("PGPOOL_MAX", 10),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	// Bare numbers are treated as seconds.
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
