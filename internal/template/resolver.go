// Package template loads per-language message templates and resolves them
// with default-language fallback. The template set is read once at startup
// and immutable afterwards; Resolve hands out independent copies so callers
// can interpolate dynamic content without corrupting the cache.
package template

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sakhibot/internal/domain"
)

// Language is one supported language, as listed on the selection menu.
type Language struct {
	Code string
	Name string
}

// languageSet holds the parsed templates of one language file: top-level
// templates plus per-bot template blocks.
type languageSet struct {
	name    string
	shared  map[string]*domain.RenderedMessage
	perBot  map[string]map[string]*domain.RenderedMessage
}

// Resolver maps (language, bot, key) to a rendered message.
type Resolver struct {
	defaultLang string
	langs       map[string]*languageSet
	ordered     []Language
	logger      *slog.Logger
}

type ResolverConfig struct {
	Dir             string // directory of <lang>.json files
	DefaultLanguage string
	Logger          *slog.Logger
}

// NewResolver loads every <lang>.json file under cfg.Dir. The default
// language must be present: it is the fallback of last resort.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	files, err := filepath.Glob(filepath.Join(cfg.Dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan template dir %s: %w", cfg.Dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no template files in %s", cfg.Dir)
	}

	r := &Resolver{
		defaultLang: cfg.DefaultLanguage,
		langs:       make(map[string]*languageSet),
		logger:      cfg.Logger,
	}

	for _, file := range files {
		code := strings.TrimSuffix(filepath.Base(file), ".json")
		set, err := loadLanguageFile(file)
		if err != nil {
			return nil, fmt.Errorf("load templates %s: %w", file, err)
		}
		r.langs[code] = set
		cfg.Logger.Info("loaded language templates", "language", code, "templates", len(set.shared))
	}

	if _, ok := r.langs[cfg.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %q has no template file in %s", cfg.DefaultLanguage, cfg.Dir)
	}

	codes := make([]string, 0, len(r.langs))
	for code := range r.langs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		name := r.langs[code].name
		if name == "" {
			name = code
		}
		r.ordered = append(r.ordered, Language{Code: code, Name: name})
	}

	return r, nil
}

// loadLanguageFile parses one language file. Top-level values are either a
// template object (has a "type" field), a per-bot block of templates, or the
// "name" string holding the language's display name.
func loadLanguageFile(path string) (*languageSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	set := &languageSet{
		shared: make(map[string]*domain.RenderedMessage),
		perBot: make(map[string]map[string]*domain.RenderedMessage),
	}

	for key, val := range raw {
		if key == "name" {
			if err := json.Unmarshal(val, &set.name); err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(val, &probe); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}

		if probe.Type != "" {
			var tpl domain.RenderedMessage
			if err := json.Unmarshal(val, &tpl); err != nil {
				return nil, fmt.Errorf("template %q: %w", key, err)
			}
			set.shared[key] = &tpl
			continue
		}

		// No "type": a per-bot block of templates.
		var block map[string]*domain.RenderedMessage
		if err := json.Unmarshal(val, &block); err != nil {
			return nil, fmt.Errorf("bot block %q: %w", key, err)
		}
		set.perBot[key] = block
	}

	return set, nil
}

// Resolve returns a copy of the template for (language, bot, key). A missing
// language or key falls back to the default language; if the default misses
// too, the error is *domain.TemplateMissingError.
func (r *Resolver) Resolve(language, bot, key string) (*domain.RenderedMessage, error) {
	if tpl := r.lookup(language, bot, key); tpl != nil {
		return tpl.Clone(), nil
	}

	if language != r.defaultLang {
		r.logger.Warn("template fallback to default language",
			"language", language, "bot", bot, "key", key, "default", r.defaultLang)
		if tpl := r.lookup(r.defaultLang, bot, key); tpl != nil {
			return tpl.Clone(), nil
		}
	}

	return nil, &domain.TemplateMissingError{Language: language, Bot: bot, Key: key}
}

func (r *Resolver) lookup(language, bot, key string) *domain.RenderedMessage {
	set, ok := r.langs[language]
	if !ok {
		return nil
	}
	if bot != "" {
		if block, ok := set.perBot[bot]; ok {
			if tpl, ok := block[key]; ok {
				return tpl
			}
		}
		return nil
	}
	return set.shared[key]
}

// Languages lists the supported languages in menu order.
func (r *Resolver) Languages() []Language {
	out := make([]Language, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// DefaultLanguage returns the configured fallback language code.
func (r *Resolver) DefaultLanguage() string { return r.defaultLang }

// Supported reports whether a language code has a template file.
func (r *Resolver) Supported(code string) bool {
	_, ok := r.langs[code]
	return ok
}

// ResolveLanguage maps a user's menu choice to a language code. Accepts a
// 1-based menu number or a language code verbatim.
func (r *Resolver) ResolveLanguage(choice string) (string, bool) {
	choice = strings.TrimSpace(choice)
	if r.Supported(choice) {
		return choice, true
	}
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(r.ordered) {
		return r.ordered[n-1].Code, true
	}
	return "", false
}
