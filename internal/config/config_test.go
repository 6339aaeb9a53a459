package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "LLM_PROVIDER", "SESSION_STORE", "LEAD_STORE", "GENERATOR_TIMEOUT", "LEAD_ALERT_RECIPIENTS", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "rules" {
		t.Fatalf("expected rules provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.SessionStore != "memory" || cfg.LeadStore != "memory" {
		t.Fatalf("expected memory stores by default, got %s/%s", cfg.SessionStore, cfg.LeadStore)
	}
	if cfg.GeneratorTimeout != 15*time.Second {
		t.Fatalf("expected default generator timeout, got %s", cfg.GeneratorTimeout)
	}
	if len(cfg.LeadAlertRecipients) != 0 {
		t.Fatalf("expected no recipients, got %v", cfg.LeadAlertRecipients)
	}
	if cfg.RateLimitPerSecond != 2 {
		t.Fatalf("expected default rate limit, got %v", cfg.RateLimitPerSecond)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LLM_PROVIDER", " Gemini ")
	t.Setenv("LLM_FALLBACK_PROVIDER", "openai")
	t.Setenv("OPENAI_BASE_URL", "https://api.groq.com/openai/v1/")
	t.Setenv("GENERATOR_TIMEOUT", "8s")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("LEAD_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LEAD_ALERT_RECIPIENTS", "a@example.com, ,b@example.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://widget.example.com")
	t.Setenv("RATE_LIMIT_BURST", "3")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.LLMProvider != "gemini" || cfg.LLMFallbackProvider != "openai" {
		t.Fatalf("expected normalized providers, got %s/%s", cfg.LLMProvider, cfg.LLMFallbackProvider)
	}
	if cfg.OpenAIBaseURL != "https://api.groq.com/openai/v1/" {
		t.Fatalf("expected base url override, got %s", cfg.OpenAIBaseURL)
	}
	if cfg.GeneratorTimeout != 8*time.Second {
		t.Fatalf("expected generator timeout override, got %s", cfg.GeneratorTimeout)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.SessionStore != "redis" || cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected redis session store with 2h ttl, got %s %s", cfg.SessionStore, cfg.SessionTTL)
	}
	if cfg.LeadStore != "postgres" || cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected postgres lead store, got %s %s", cfg.LeadStore, cfg.DatabaseURL)
	}
	if len(cfg.LeadAlertRecipients) != 2 || cfg.LeadAlertRecipients[1] != "b@example.com" {
		t.Fatalf("expected two recipients, got %v", cfg.LeadAlertRecipients)
	}
	if len(cfg.CORSAllowedOrigins) != 1 {
		t.Fatalf("expected one origin, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitBurst != 3 {
		t.Fatalf("expected burst override, got %d", cfg.RateLimitBurst)
	}
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("GENERATOR_TIMEOUT", "soon")
	t.Setenv("LLM_MAX_TOKENS", "many")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.GeneratorTimeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.GeneratorTimeout)
	}
	if cfg.LLMMaxTokens != 512 {
		t.Fatalf("expected default max tokens, got %d", cfg.LLMMaxTokens)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls disabled")
	}
}
