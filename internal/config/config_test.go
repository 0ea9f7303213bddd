package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_DRIVER", "EMBEDDING_DIM", "EMBED_TIMEOUT", "IMAGE_SEARCH_MAX_RESULTS",
		"MATCH_DEFAULT_THRESHOLD", "SERPAPI_KEY", "CLOUDINARY_CLOUD_NAME",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got '%s'", cfg.Database.Driver)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected default dim 512, got %d", cfg.Embedding.Dim)
	}
	if cfg.Timeouts.Embed != 30*time.Second {
		t.Errorf("expected default embed timeout 30s, got %v", cfg.Timeouts.Embed)
	}
	if cfg.ImageSearch.MaxResults != 5 {
		t.Errorf("expected default max results 5, got %d", cfg.ImageSearch.MaxResults)
	}
	if cfg.Match.DefaultThreshold != 0.33 {
		t.Errorf("expected default threshold 0.33, got %v", cfg.Match.DefaultThreshold)
	}
	if cfg.ImageSearch.Enabled() {
		t.Error("expected image search disabled without API key")
	}
	if cfg.Cloudinary.Enabled() {
		t.Error("expected cloudinary disabled without credentials")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("GEOCODE_TIMEOUT", "3s")
	t.Setenv("MATCH_DEFAULT_THRESHOLD", "0.5")

	cfg := Load()

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected driver postgres, got '%s'", cfg.Database.Driver)
	}
	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected dim 128, got %d", cfg.Embedding.Dim)
	}
	if cfg.Database.EmbeddingDim != 128 {
		t.Errorf("expected store dim 128, got %d", cfg.Database.EmbeddingDim)
	}
	if cfg.Timeouts.Geocode != 3*time.Second {
		t.Errorf("expected geocode timeout 3s, got %v", cfg.Timeouts.Geocode)
	}
	if cfg.Match.DefaultThreshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", cfg.Match.DefaultThreshold)
	}
}

func TestEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "abc")
	if got := envInt("TEST_ENV_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
	t.Setenv("TEST_ENV_INT", "-3")
	if got := envInt("TEST_ENV_INT", 7); got != 7 {
		t.Errorf("expected fallback 7 for negative value, got %d", got)
	}
}

func TestEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_ENV_DURATION", "soon")
	if got := envDuration("TEST_ENV_DURATION", time.Second); got != time.Second {
		t.Errorf("expected fallback 1s, got %v", got)
	}
}

func TestSocialDomains(t *testing.T) {
	domains := SocialDomains()
	if len(domains) == 0 {
		t.Fatal("expected embedded social domains")
	}
	found := false
	for _, d := range domains {
		if d == "facebook.com" {
			found = true
		}
	}
	if !found {
		t.Error("expected facebook.com in social domains")
	}
}

func TestLoad_Web(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_HOST", "")
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example.org, ,https://b.example.org")

	cfg := Load()

	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected default host, got '%s'", cfg.Web.Host)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://b.example.org" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
}
