package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Embedding.APIKey = "sk-test"
	return cfg
}

func TestDefaultConfig_NeedsAPIKey(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "embedding") {
		t.Fatalf("default openai config without api key: err = %v", err)
	}
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("config with api key should pass: %v", err)
	}
}

func TestEmbeddingConfig_OllamaNeedsNoKey(t *testing.T) {
	cfg := EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ollama without key should pass: %v", err)
	}
	opts := cfg.Options()
	if opts.Kind != "ollama" || opts.Model != "nomic-embed-text" {
		t.Errorf("options = %+v", opts)
	}
}

func TestEmbeddingConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  EmbeddingConfig
	}{
		{"unknown provider", EmbeddingConfig{Provider: "cohere", APIKey: "k"}},
		{"negative retries", EmbeddingConfig{Provider: "ollama", MaxRetries: -1}},
		{"too many retries", EmbeddingConfig{Provider: "ollama", MaxRetries: 50}},
		{"negative dimensions", EmbeddingConfig{Provider: "ollama", Dimensions: -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNotesConfig_Roots(t *testing.T) {
	cfg := validConfig()
	cfg.Notes.Roots = nil
	if err := cfg.Validate(); err == nil {
		t.Error("no roots should fail")
	}
	cfg.Notes.Roots = []string{"./a", ""}
	if err := cfg.Validate(); err == nil {
		t.Error("blank root should fail")
	}
}

func TestSimilarityConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Similarity.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero concurrency should fail")
	}
	cfg = validConfig()
	cfg.Similarity.Timeout = 10 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("sub-second timeout should fail")
	}
}
