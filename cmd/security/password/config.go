package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Policy controls password validation for newly chosen passwords.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
// Derivation cost is fixed (see SaltSize, HashSize, Iterations); only policy is tunable.
type Config struct {
	Policy Policy
}

// DefaultConfig returns the policy used when no env overrides are present.
func DefaultConfig() Config {
	return Config{
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - SAUAT_PASSWORD_MIN_LEN
// - SAUAT_PASSWORD_MAX_LEN
// - SAUAT_PASSWORD_REJECT_VERY_WEAK (true/false)
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("SAUAT_PASSWORD_MIN_LEN"); ok {
		n, err := atoiInRange(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("SAUAT_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("SAUAT_PASSWORD_MAX_LEN"); ok {
		n, err := atoiInRange(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("SAUAT_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("SAUAT_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("SAUAT_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}
