package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/quill/internal/frontmatter"
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

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Content.Root == "" || cfg.SQLite.Path == "" {
		t.Errorf("defaults missing: %+v", cfg)
	}
}

func TestContentConfig_RootRequired(t *testing.T) {
	cfg := ContentConfig{Root: ""}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty root should fail validation")
	}
}

func TestContentConfig_Extensions(t *testing.T) {
	cfg := ContentConfig{Root: "x", Extensions: []string{".md", "markdown"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid extensions rejected: %v", err)
	}
	cfg.Extensions = []string{".md", "*.txt"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("glob extension should fail validation")
	}
}

func TestContentConfig_Timezone(t *testing.T) {
	cfg := ContentConfig{Root: "x", Timezone: "Europe/Berlin"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid timezone rejected: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc == nil || loc.String() != "Europe/Berlin" {
		t.Fatalf("Location() = %v, %v", loc, err)
	}

	cfg.Timezone = "Mars/Olympus"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown timezone") {
		t.Fatalf("bad timezone error = %v", err)
	}
}

func TestContentConfig_ParseOptions(t *testing.T) {
	raw := "---\ntitle: T\ndate: 2020-01-02 03:04:05\n---\n"

	cfg := ContentConfig{Root: "x"}
	opts, err := cfg.ParseOptions()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := frontmatter.ParseString(raw, opts...); err == nil {
		t.Fatal("offset-less date should be rejected without a timezone")
	}

	cfg.Timezone = "UTC"
	cfg.DefaultTOC = true
	opts, err = cfg.ParseOptions()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := frontmatter.ParseString(raw, opts...)
	if err != nil {
		t.Fatalf("parse with timezone: %v", err)
	}
	if !doc.TOC {
		t.Error("default TOC should be applied")
	}
	if doc.Date.Hour() != 3 {
		t.Errorf("date = %v", doc.Date)
	}
}

func TestEventsConfig_NegativeThrottle(t *testing.T) {
	cfg := EventsConfig{TaxonomyThrottle: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative throttle should fail validation")
	}
}
