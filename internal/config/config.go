package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/warp/pos-ledger/internal/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// Server
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string

	// Storage
	DBDriver    string
	DBPath      string
	DatabaseURL string
	DBDebug     bool

	// Reporting
	ReportTimezone string
	ReportTopLimit int

	// BalanceCheckInterval drives the periodic balance re-check. Zero disables it.
	BalanceCheckInterval time.Duration

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads and validates the environment. Call godotenv.Load first to
// pick up a .env file.
func Load() (*Config, error) {
	config, err := Read()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Read parses the environment without validating it.
func Read() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	readTimeout, err := getInt("SERVER_READ_TIMEOUT", 15)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := getInt("SERVER_WRITE_TIMEOUT", 15)
	if err != nil {
		return nil, err
	}
	topLimit, err := getInt("REPORT_TOP_LIMIT", 7)
	if err != nil {
		return nil, err
	}
	checkMinutes, err := getInt("BALANCE_CHECK_MINUTES", 60)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Port:           port,
		ReadTimeout:    time.Duration(readTimeout) * time.Second,
		WriteTimeout:   time.Duration(writeTimeout) * time.Second,
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:         getEnv("DB_PATH", "pos.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBDebug:        getEnv("DB_DEBUG", "") == "1",
		ReportTimezone: getEnv("REPORT_TIMEZONE", "UTC"),
		ReportTopLimit: topLimit,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:  getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:      getEnv("LOG_OUTPUT", "stdout"),
	}
	config.BalanceCheckInterval = time.Duration(checkMinutes) * time.Minute
	return config, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.ReportTopLimit <= 0 {
		return fmt.Errorf("REPORT_TOP_LIMIT must be positive, got %d", c.ReportTopLimit)
	}
	if c.BalanceCheckInterval < 0 {
		return fmt.Errorf("BALANCE_CHECK_MINUTES must not be negative")
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the reporting time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
