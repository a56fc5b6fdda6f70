package app

import (
	"os"
	"strconv"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
)

type Config struct {
	Issuer       string // Issuer claim for session tokens (default: opsdesk-auth)
	DatabaseFile string // Path to SQLite database file (default: ./opsdesk.db)
	PepperFile   string // Path to pepper file for password hashing (default: ./pepper)

	SessionTTL       time.Duration // Session token lifetime (default: 24h)
	SetupTTL         time.Duration // Pending TOTP setup lifetime (default: 10m)
	SetupTokenTTL    time.Duration // Login-time setup token lifetime (default: 10m)
	LockoutThreshold int           // Failed attempts before lockout (default: 5)
	LockoutCooldown  time.Duration // Lockout duration (default: 15m)

	// Bootstrap seeds an empty database with a first tenant and superadmin.
	BootstrapClientCode string
	BootstrapTenantName string
	BootstrapUsername   string
	BootstrapPassword   string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-state sweep interval (default: 5m)
}

func LoadConfig() Config {
	return Config{
		Issuer:       getEnvOrDefault("OPSDESK_ISSUER", "opsdesk-auth"),
		DatabaseFile: getEnvOrDefault("OPSDESK_DATABASE_FILE", "opsdesk.db"),
		PepperFile:   getEnvOrDefault("OPSDESK_PEPPER_FILE", "pepper"),

		SessionTTL:       getEnvDurationOrDefault("OPSDESK_SESSION_TTL", jwtx.DefaultSessionTTL),
		SetupTTL:         getEnvDurationOrDefault("OPSDESK_SETUP_TTL", service.DefaultSetupTTL),
		SetupTokenTTL:    getEnvDurationOrDefault("OPSDESK_SETUP_TOKEN_TTL", service.DefaultSetupTokenTTL),
		LockoutThreshold: getEnvIntOrDefault("OPSDESK_LOCKOUT_THRESHOLD", service.DefaultLockoutThreshold),
		LockoutCooldown:  getEnvDurationOrDefault("OPSDESK_LOCKOUT_COOLDOWN", service.DefaultLockoutCooldown),

		BootstrapClientCode: os.Getenv("OPSDESK_BOOTSTRAP_CLIENT_CODE"),
		BootstrapTenantName: os.Getenv("OPSDESK_BOOTSTRAP_TENANT_NAME"),
		BootstrapUsername:   os.Getenv("OPSDESK_BOOTSTRAP_USERNAME"),
		BootstrapPassword:   os.Getenv("OPSDESK_BOOTSTRAP_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", service.DefaultHousekeepingInterval),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
