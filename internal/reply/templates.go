// Package reply composes thank-you replies to birthday wishes.
package reply

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
)

// FallbackLanguage is used when no template exists for the matched language.
const FallbackLanguage = "en"

//go:embed templates.yaml
var defaultTemplates []byte

// Writer returns the reply text for a wish written in lang.
type Writer interface {
	Write(ctx context.Context, m domain.Message, lang string) string
}

type Templates struct {
	byLang map[string][]string
	pick   func(n int) int
}

func ParseTemplates(data []byte) (*Templates, error) {
	var byLang map[string][]string
	if err := yaml.Unmarshal(data, &byLang); err != nil {
		return nil, fmt.Errorf("parse reply templates: %w", err)
	}
	for tag, variants := range byLang {
		if len(variants) == 0 {
			return nil, fmt.Errorf("reply templates: language %q has no variants", tag)
		}
	}
	if len(byLang[FallbackLanguage]) == 0 {
		return nil, fmt.Errorf("reply templates: missing %q variants", FallbackLanguage)
	}
	return &Templates{byLang: byLang, pick: rand.IntN}, nil
}

func DefaultTemplates() *Templates {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTemplates reads a template file, or the built-in table when path is empty.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return DefaultTemplates(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reply templates: %w", err)
	}
	return ParseTemplates(data)
}

// Text picks a random variant for lang, trying the base tag ("pt" for
// "pt-BR") and then English.
func (t *Templates) Text(lang, name string) string {
	variants := t.variants(lang)
	text := variants[t.pick(len(variants))]
	if name == "" {
		text = strings.ReplaceAll(text, ", {name}", "")
	}
	return strings.ReplaceAll(text, "{name}", name)
}

func (t *Templates) Write(_ context.Context, m domain.Message, lang string) string {
	return t.Text(lang, firstName(m.Contact.Name))
}

func (t *Templates) variants(lang string) []string {
	if v, ok := t.byLang[lang]; ok {
		return v
	}
	if base, _, ok := strings.Cut(lang, "-"); ok {
		if v, ok := t.byLang[base]; ok {
			return v
		}
	}
	return t.byLang[FallbackLanguage]
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return ""
}
