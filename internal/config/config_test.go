package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port == "" {
		t.Fatalf("expected default port")
	}
	if cfg.CardDiscountCents != 200 {
		t.Fatalf("expected default card discount 200, got %d", cfg.CardDiscountCents)
	}
	if cfg.EditWindowMinutes != 15 {
		t.Fatalf("expected default edit window 15, got %d", cfg.EditWindowMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}
