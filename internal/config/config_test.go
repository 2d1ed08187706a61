package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadTTL(t *testing.T) {
	t.Setenv("DASHBOARD_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.DashboardTTLSeconds != 30 {
		t.Fatalf("expected default TTL 30, got %d", cfg.DashboardTTLSeconds)
	}
}
