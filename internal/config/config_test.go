package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadTTLDefaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("REFRESH_TOKEN_TTL_HOURS", "")
	t.Setenv("SWEEP_INTERVAL_MINUTES", "not-a-number")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 15 {
		t.Fatalf("expected access TTL default 15, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.RefreshTokenTTLHours != 720 {
		t.Fatalf("expected refresh TTL default 720, got %d", cfg.RefreshTokenTTLHours)
	}
	if cfg.SweepIntervalMinutes != 10 {
		t.Fatalf("expected sweep interval default 10, got %d", cfg.SweepIntervalMinutes)
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %q", cfg.Address())
	}
}
