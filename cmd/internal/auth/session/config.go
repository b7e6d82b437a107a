package session

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sauat/cmd/security/token"
)

// MinSigningKeyBytes is the smallest HS512 key accepted.
const MinSigningKeyBytes = 64

// Config defines runtime configuration for token issuance and refresh rotation.
type Config struct {
	// Issuer and Audience are written to and required in access tokens.
	Issuer   string
	Audience string

	// SigningKey is the HS512 secret (IssuerSigningKey).
	SigningKey []byte

	// AccessTokenTTL comes from AccessTokenExpiryMinutes.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL comes from RefreshTokenExpiryDays.
	RefreshTokenTTL time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	// EnforceAccessLifetime makes Verify reject expired or not-yet-valid
	// access tokens. Off by default: gateways in front of sauat check exp.
	EnforceAccessLifetime bool

	// ClockSkew is the leeway applied when lifetime is enforced.
	ClockSkew time.Duration
}

// DefaultConfig returns defaults without an issuer, audience or signing key.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:    30 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		RefreshTokenBytes: 64,
		ClockSkew:         30 * time.Second,
	}
}

// Validate checks the invariants LoadConfigFromEnv relies on.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	case strings.TrimSpace(c.Audience) == "":
		return fmt.Errorf("%w: audience is required", ErrConfig)
	case len(c.SigningKey) < MinSigningKeyBytes:
		return fmt.Errorf("%w: signing key must be at least %d bytes", ErrConfig, MinSigningKeyBytes)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access token ttl must be positive", ErrConfig)
	case c.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: refresh token ttl must be positive", ErrConfig)
	case c.RefreshTokenBytes < token.MinBytes || c.RefreshTokenBytes > token.MaxBytes:
		return fmt.Errorf("%w: refresh token bytes must be in [%d,%d]", ErrConfig, token.MinBytes, token.MaxBytes)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - SAUAT_AUTH_ISSUER
//   - SAUAT_AUTH_AUDIENCE
//   - SAUAT_AUTH_SIGNING_KEY (at least 64 bytes)
//
// Optional:
//   - SAUAT_AUTH_ACCESS_TOKEN_MINUTES
//   - SAUAT_AUTH_REFRESH_TOKEN_DAYS
//   - SAUAT_AUTH_REFRESH_TOKEN_BYTES
//   - SAUAT_AUTH_ENFORCE_ACCESS_LIFETIME
//   - SAUAT_AUTH_CLOCK_SKEW (Go duration)
//
// Every failure wraps ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.Issuer = strings.TrimSpace(os.Getenv("SAUAT_AUTH_ISSUER"))
	if cfg.Issuer == "" {
		return Config{}, fmt.Errorf("%w: SAUAT_AUTH_ISSUER is required", ErrConfig)
	}
	cfg.Audience = strings.TrimSpace(os.Getenv("SAUAT_AUTH_AUDIENCE"))
	if cfg.Audience == "" {
		return Config{}, fmt.Errorf("%w: SAUAT_AUTH_AUDIENCE is required", ErrConfig)
	}

	if v := strings.TrimSpace(os.Getenv("SAUAT_AUTH_ACCESS_TOKEN_MINUTES")); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil || m <= 0 {
			return Config{}, fmt.Errorf("%w: SAUAT_AUTH_ACCESS_TOKEN_MINUTES=%q", ErrConfig, v)
		}
		cfg.AccessTokenTTL = time.Duration(m * float64(time.Minute))
	}

	if v := strings.TrimSpace(os.Getenv("SAUAT_AUTH_REFRESH_TOKEN_DAYS")); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: SAUAT_AUTH_REFRESH_TOKEN_DAYS=%q", ErrConfig, v)
		}
		cfg.RefreshTokenTTL = time.Duration(d) * 24 * time.Hour
	}

	if v := strings.TrimSpace(os.Getenv("SAUAT_AUTH_REFRESH_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: SAUAT_AUTH_REFRESH_TOKEN_BYTES=%q", ErrConfig, v)
		}
		cfg.RefreshTokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("SAUAT_AUTH_ENFORCE_ACCESS_LIFETIME")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: SAUAT_AUTH_ENFORCE_ACCESS_LIFETIME=%q", ErrConfig, v)
		}
		cfg.EnforceAccessLifetime = b
	}

	if v := strings.TrimSpace(os.Getenv("SAUAT_AUTH_CLOCK_SKEW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: SAUAT_AUTH_CLOCK_SKEW=%q", ErrConfig, v)
		}
		cfg.ClockSkew = d
	}

	cfg.SigningKey = []byte(os.Getenv("SAUAT_AUTH_SIGNING_KEY"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
