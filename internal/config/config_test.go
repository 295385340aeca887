package config

import (
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_NoProviderEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.Gupshup.Enabled = false
	cfg.Providers.Netcore.Enabled = false
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error when no provider is enabled")
	}
}

func TestValidate_SessionBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Backend = "redis"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown session backend")
	}

	cfg.Session.Backend = "sqlite"
	cfg.Session.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for sqlite backend without dbPath")
	}
}

func TestValidate_NetcoreCharLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.Netcore.Enabled = true
	cfg.Providers.Netcore.CharLimit = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for charLimit=0 with netcore enabled")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_Basic(t *testing.T) {
	os.Setenv("SAKHIBOT_TEST_VAR", "hello")
	defer os.Unsetenv("SAKHIBOT_TEST_VAR")

	got := ExpandEnvVars("value is ${SAKHIBOT_TEST_VAR}")
	if got != "value is hello" {
		t.Fatalf("expected expansion, got %q", got)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("SAKHIBOT_UNSET_VAR")

	got := ExpandEnvVars("${SAKHIBOT_UNSET_VAR:-fallback}")
	if got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestExpandEnvVars_UnsetNoDefault(t *testing.T) {
	os.Unsetenv("SAKHIBOT_UNSET_VAR")

	got := ExpandEnvVars("${SAKHIBOT_UNSET_VAR}")
	if got != "${SAKHIBOT_UNSET_VAR}" {
		t.Fatalf("expected original string kept, got %q", got)
	}
}

// --- Load ---

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	os.Setenv("SAKHIBOT_TEST_KEY", "secret-key")
	defer os.Unsetenv("SAKHIBOT_TEST_KEY")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
		"providers": {
			"gupshup": {"enabled": true, "url": "https://api.gupshup.io/wa/api/v1/msg", "apiKey": "${SAKHIBOT_TEST_KEY}"}
		}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Providers.Gupshup.APIKey != "secret-key" {
		t.Fatalf("expected env-expanded apiKey, got %q", cfg.Providers.Gupshup.APIKey)
	}
	// Unspecified sections keep defaults.
	if cfg.Templates.DefaultLanguage != "en" {
		t.Fatalf("expected default language en, got %q", cfg.Templates.DefaultLanguage)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// --- LoadBots ---

func TestLoadBots(t *testing.T) {
	os.Setenv("SAKHIBOT_STORY_URL", "http://story.local/v1/query")
	defer os.Unsetenv("SAKHIBOT_STORY_URL")

	dir := t.TempDir()
	path := filepath.Join(dir, "bots.yaml")
	raw := `
default: bot_1
bots:
  bot_1:
    name: story
    endpoint: ${SAKHIBOT_STORY_URL}
    pageId: story-sakhi
  bot_2:
    name: parent
    endpoint: http://activity.local/v1/query
    audienceType: parent
    pageId: parent-sakhi
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadBots(path)
	if err != nil {
		t.Fatalf("load bots: %v", err)
	}
	if b, _ := m.Profile("bot_1"); b.Endpoint != "http://story.local/v1/query" {
		t.Fatalf("expected env-expanded endpoint, got %q", b.Endpoint)
	}
	if !m.IsDefault("bot_1") || m.IsDefault("bot_2") {
		t.Fatal("default bot mismatch")
	}

	if id, ok := m.Resolve("2"); !ok || id != "bot_2" {
		t.Fatalf("expected numeric choice to resolve to bot_2, got %q ok=%v", id, ok)
	}
	if id, ok := m.Resolve("bot_2"); !ok || id != "bot_2" {
		t.Fatalf("expected id choice to resolve, got %q ok=%v", id, ok)
	}
	if _, ok := m.Resolve("9"); ok {
		t.Fatal("expected unknown choice to fail")
	}
}

func TestLoadBots_MissingDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bots.yaml")
	raw := `
bots:
  bot_1:
    endpoint: http://story.local
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBots(path); err == nil {
		t.Fatal("expected error for missing default")
	}
}
