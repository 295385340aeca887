package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sakhibot/internal/domain"
)

func writeTemplates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	en := `{
		"name": "English",
		"lang_selection": {"type": "text", "text": "Please choose a language"},
		"loading_message": {"type": "text", "text": "Thinking..."},
		"bot_answer_text": {"type": "text"},
		"bot_1": {
			"welcome": {"type": "text", "text": "Welcome to stories"}
		}
	}`
	hi := `{
		"name": "Hindi",
		"lang_selection": {"type": "text", "text": "कृपया भाषा चुनें"},
		"bot_1": {
			"welcome": {"type": "text", "text": "कहानियों में आपका स्वागत है"}
		}
	}`
	if err := os.WriteFile(filepath.Join(dir, "en.json"), []byte(en), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "hi.json"), []byte(hi), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(ResolverConfig{Dir: writeTemplates(t), DefaultLanguage: "en"})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func TestResolve_LanguageSpecific(t *testing.T) {
	r := newTestResolver(t)

	msg, err := r.Resolve("hi", "", "lang_selection")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if msg.Text != "कृपया भाषा चुनें" {
		t.Fatalf("expected hindi template, got %q", msg.Text)
	}
}

func TestResolve_FallbackToDefault(t *testing.T) {
	r := newTestResolver(t)

	// "loading_message" exists only in en.
	msg, err := r.Resolve("hi", "", "loading_message")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if msg.Text != "Thinking..." {
		t.Fatalf("expected default-language fallback, got %q", msg.Text)
	}

	// Unsupported language falls back too.
	msg, err = r.Resolve("fr", "bot_1", "welcome")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if msg.Text != "Welcome to stories" {
		t.Fatalf("expected default-language bot template, got %q", msg.Text)
	}
}

func TestResolve_Missing(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve("hi", "", "no_such_key")
	var miss *domain.TemplateMissingError
	if !errors.As(err, &miss) {
		t.Fatalf("expected TemplateMissingError, got %v", err)
	}
	if miss.Key != "no_such_key" {
		t.Fatalf("error should carry the key, got %q", miss.Key)
	}
}

func TestResolve_ReturnsIndependentCopies(t *testing.T) {
	r := newTestResolver(t)

	first, err := r.Resolve("en", "", "bot_answer_text")
	if err != nil {
		t.Fatal(err)
	}
	first.Text = "mutated answer"

	second, err := r.Resolve("en", "", "bot_answer_text")
	if err != nil {
		t.Fatal(err)
	}
	if second.Text == "mutated answer" {
		t.Fatal("resolver returned a shared mutable template")
	}
}

func TestLanguages_OrderAndNames(t *testing.T) {
	r := newTestResolver(t)

	langs := r.Languages()
	if len(langs) != 2 {
		t.Fatalf("expected 2 languages, got %d", len(langs))
	}
	if langs[0].Code != "en" || langs[0].Name != "English" {
		t.Fatalf("unexpected first language: %+v", langs[0])
	}
	if langs[1].Code != "hi" || langs[1].Name != "Hindi" {
		t.Fatalf("unexpected second language: %+v", langs[1])
	}
}

func TestResolveLanguage(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		choice string
		want   string
		ok     bool
	}{
		{"1", "en", true},
		{"2", "hi", true},
		{"en", "en", true},
		{" hi ", "hi", true},
		{"3", "", false},
		{"0", "", false},
		{"xx", "", false},
	}
	for _, tt := range tests {
		got, ok := r.ResolveLanguage(tt.choice)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ResolveLanguage(%q) = %q,%v want %q,%v", tt.choice, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewResolver_DefaultLanguageRequired(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hi.json"), []byte(`{"name":"Hindi"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(ResolverConfig{Dir: dir, DefaultLanguage: "en"}); err == nil {
		t.Fatal("expected error when default language file is absent")
	}
}
