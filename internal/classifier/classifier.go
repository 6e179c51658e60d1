// Package classifier decides whether a message is a birthday wish and in which
// language, using a declarative phrase table.
package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed phrases.yaml
var defaultTable []byte

type Table struct {
	Emoji     []string   `yaml:"emoji"`
	Languages []Language `yaml:"languages"`
}

type Language struct {
	Tag         string   `yaml:"tag"`
	Name        string   `yaml:"name"`
	Phrases     []string `yaml:"phrases"`
	Celebratory []string `yaml:"celebratory"`
}

// Result is the classification of one message. Language is empty when the
// message is not a wish.
type Result struct {
	IsWish       bool
	Language     string
	LanguageName string
}

type Classifier struct {
	emoji []string
	langs []Language
}

// ParseTable decodes a YAML phrase table.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse phrase table: %w", err)
	}
	return t, nil
}

// New validates the table and pre-folds every entry.
func New(t Table) (*Classifier, error) {
	if len(t.Languages) == 0 {
		return nil, fmt.Errorf("phrase table has no languages")
	}
	seen := make(map[string]bool, len(t.Languages))
	c := &Classifier{}
	for _, e := range t.Emoji {
		if e = strings.TrimSpace(e); e != "" {
			c.emoji = append(c.emoji, norm.NFC.String(e))
		}
	}
	for _, l := range t.Languages {
		tag, err := language.Parse(l.Tag)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", l.Tag, err)
		}
		key := tag.String()
		if seen[key] {
			return nil, fmt.Errorf("language %q declared twice", key)
		}
		seen[key] = true
		if len(l.Phrases) == 0 {
			return nil, fmt.Errorf("language %q has no phrases", key)
		}
		c.langs = append(c.langs, Language{
			Tag:         key,
			Name:        l.Name,
			Phrases:     foldAll(l.Phrases),
			Celebratory: foldAll(l.Celebratory),
		})
	}
	return c, nil
}

// Default returns a classifier over the embedded phrase table.
func Default() *Classifier {
	t, err := ParseTable(defaultTable)
	if err != nil {
		panic(err)
	}
	c, err := New(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a phrase table from path, or the embedded table when path is empty.
func Load(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, err
	}
	return New(t)
}

// Classify reports whether text is a birthday wish. Direct phrase matches are
// tried across all languages before the weaker emoji plus celebratory token rule.
func (c *Classifier) Classify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}
	s := fold(text)

	for _, l := range c.langs {
		if containsAny(s, l.Phrases) {
			return Result{IsWish: true, Language: l.Tag, LanguageName: l.Name}
		}
	}
	if !containsAny(s, c.emoji) {
		return Result{}
	}
	for _, l := range c.langs {
		if containsAny(s, l.Celebratory) {
			return Result{IsWish: true, Language: l.Tag, LanguageName: l.Name}
		}
	}
	return Result{}
}

// Languages lists the configured language tags in declaration order.
func (c *Classifier) Languages() []string {
	tags := make([]string, len(c.langs))
	for i, l := range c.langs {
		tags[i] = l.Tag
	}
	return tags
}

func fold(s string) string {
	// Casers keep state and are not safe for concurrent use.
	return cases.Fold().String(norm.NFC.String(s))
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, fold(p))
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
