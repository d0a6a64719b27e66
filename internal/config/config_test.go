package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Addr != ":8787" {
		t.Errorf("expected default addr :8787, got %s", cfg.Addr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("expected default access TTL 15m, got %s", cfg.AccessTTL)
	}
	if cfg.ResolutionRadiusMeters != 30 {
		t.Errorf("expected default resolution radius 30m, got %v", cfg.ResolutionRadiusMeters)
	}
	if cfg.SMTPHost != "" {
		t.Errorf("expected SMTP disabled by default, got host %q", cfg.SMTPHost)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("CROWDCARE_ACCESS_TTL_SECONDS", "60")
	t.Setenv("CROWDCARE_RESOLUTION_RADIUS_METERS", "50")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()

	if cfg.Addr != ":9999" {
		t.Errorf("expected addr :9999, got %s", cfg.Addr)
	}
	if cfg.AccessTTL != time.Minute {
		t.Errorf("expected access TTL 1m, got %s", cfg.AccessTTL)
	}
	if cfg.ResolutionRadiusMeters != 50 {
		t.Errorf("expected resolution radius 50m, got %v", cfg.ResolutionRadiusMeters)
	}
	if !cfg.MinioUseSSL {
		t.Error("expected MinioUseSSL true")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CROWDCARE_ACCESS_TTL_SECONDS", "not-a-number")
	t.Setenv("CROWDCARE_RESOLUTION_RADIUS_METERS", "wide")

	cfg := Load()

	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("expected fallback access TTL 15m, got %s", cfg.AccessTTL)
	}
	if cfg.ResolutionRadiusMeters != 30 {
		t.Errorf("expected fallback radius 30m, got %v", cfg.ResolutionRadiusMeters)
	}
}
