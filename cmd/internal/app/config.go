package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | pretty

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Empty DatabaseURL runs identity and refresh tokens in memory (dev only).
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBAutoMigrate bool

	// RefreshStore selects the refresh token backend: postgres | redis | memory.
	// Empty picks postgres when DatabaseURL is set and memory otherwise.
	RefreshStore           string
	RedisURL               string
	RefreshCleanupInterval time.Duration

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// PresenceDetails lets /api/presence?details=1 list connection keys.
	PresenceDetails bool

	// Both set: New seeds the admin account on startup.
	SeedAdminEmail string
	AdminPassword  string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("SAUAT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SAUAT_LOG_LEVEL", "info"),
		LogFormat: EnvString("SAUAT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("SAUAT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SAUAT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SAUAT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SAUAT_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SAUAT_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("SAUAT_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("SAUAT_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("SAUAT_DB_MIN_CONNS", 0),
		DBAutoMigrate: EnvBool("SAUAT_DB_AUTO_MIGRATE", true),

		RefreshStore:           EnvString("SAUAT_REFRESH_STORE", ""),
		RedisURL:               EnvString("SAUAT_REDIS_URL", ""),
		RefreshCleanupInterval: EnvDuration("SAUAT_REFRESH_CLEANUP_INTERVAL", time.Hour),

		CORSAllowedOrigins:   envCSVOr("SAUAT_CORS_ALLOWED_ORIGINS", "http://localhost:*", "http://127.0.0.1:*"),
		CORSAllowCredentials: EnvBool("SAUAT_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("SAUAT_CORS_MAX_AGE_SECONDS", 600),

		PresenceDetails: EnvBool("SAUAT_PRESENCE_DETAILS", false),

		SeedAdminEmail: EnvString("SAUAT_SEED_ADMIN_EMAIL", ""),
		AdminPassword:  EnvString("SAUAT_ADMIN_PASSWORD", ""),
	}
}
