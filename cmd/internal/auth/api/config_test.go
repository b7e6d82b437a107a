package authapi

import "testing"

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("SAUAT_AUTH_TRUST_PROXY", "")
	t.Setenv("SAUAT_AUTH_MAX_BODY_BYTES", "")

	cfg := LoadConfigFromEnv()
	if cfg.TrustProxy {
		t.Fatalf("TrustProxy must default to false")
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Fatalf("MaxBodyBytes=%d want %d", cfg.MaxBodyBytes, 64<<10)
	}
}

func TestLoadConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SAUAT_AUTH_TRUST_PROXY", "maybe")
	t.Setenv("SAUAT_AUTH_MAX_BODY_BYTES", "-5")

	cfg := LoadConfigFromEnv()
	if cfg.TrustProxy {
		t.Fatalf("unparsable bool must fall back to default")
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Fatalf("negative size must fall back to default, got %d", cfg.MaxBodyBytes)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SAUAT_AUTH_TRUST_PROXY", "true")
	t.Setenv("SAUAT_AUTH_MAX_BODY_BYTES", "1024")

	cfg := LoadConfigFromEnv()
	if !cfg.TrustProxy || cfg.MaxBodyBytes != 1024 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
