// Package catalog holds the embedded en-US and pt-BR message catalogs used
// for window labels, cadence names and error messages, and registers them
// with golang.org/x/text/message.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en-US"

// file is one locales/<locale>/<namespace>.yaml document.
type file struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle is a set of locales, each split into namespaces. Keys are unique
// per locale across namespaces because x/text registers them flat.
type Bundle struct {
	namespaces map[string]map[string]map[string]string // locale -> namespace -> key -> text
	flat       map[string]map[string]string            // locale -> key -> text
	tags       []language.Tag
	matcher    language.Matcher
}

//go:embed locales/*/*.yaml
var embedded embed.FS

var defaultBundle = mustLoadEmbedded()

// Default returns the embedded bundle, already registered with x/text.
func Default() *Bundle {
	return defaultBundle
}

// LoadEmbedded parses the catalogs compiled into the binary.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embedded)
}

// LoadFromFS parses every locales/*/*.yaml file of fsys. The base locale must
// be present.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	slices.Sort(paths)

	b := &Bundle{
		namespaces: make(map[string]map[string]map[string]string),
		flat:       make(map[string]map[string]string),
	}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := b.add(p, f); err != nil {
			return nil, err
		}
	}
	if _, ok := b.flat[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s has no catalog", BaseLocale)
	}

	// The base locale goes first so unmatched requests resolve to it.
	b.tags = []language.Tag{language.Make(BaseLocale)}
	for _, locale := range b.Locales() {
		if locale != BaseLocale {
			b.tags = append(b.tags, language.Make(locale))
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func (b *Bundle) add(p string, f file) error {
	locale := strings.TrimSpace(f.Locale)
	namespace := strings.TrimSpace(f.Namespace)
	switch {
	case locale == "" || namespace == "":
		return fmt.Errorf("catalog %s: locale and namespace are required", p)
	case locale != path.Base(path.Dir(p)):
		return fmt.Errorf("catalog %s: locale %q does not match its directory", p, locale)
	case namespace != strings.TrimSuffix(path.Base(p), path.Ext(p)):
		return fmt.Errorf("catalog %s: namespace %q does not match its file name", p, namespace)
	case len(f.Messages) == 0:
		return fmt.Errorf("catalog %s: no messages", p)
	}

	if b.namespaces[locale] == nil {
		b.namespaces[locale] = make(map[string]map[string]string)
		b.flat[locale] = make(map[string]string)
	}
	if _, ok := b.namespaces[locale][namespace]; ok {
		return fmt.Errorf("catalog %s: namespace %q defined twice for %s", p, namespace, locale)
	}
	messages := make(map[string]string, len(f.Messages))
	for key, text := range f.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: blank message key", p)
		}
		if _, ok := b.flat[locale][key]; ok {
			return fmt.Errorf("catalog %s: duplicate key %q in %s", p, key, locale)
		}
		messages[key] = text
		b.flat[locale][key] = text
	}
	b.namespaces[locale][namespace] = messages
	return nil
}

// Register publishes every message to x/text under its locale and, for
// regional locales, the bare language too ("pt" for "pt-BR").
func (b *Bundle) Register() error {
	for _, locale := range b.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale %q: %w", locale, err)
		}
		tags := []language.Tag{tag}
		if base, conf := tag.Base(); conf != language.No {
			if baseTag := language.Make(base.String()); baseTag.String() != tag.String() {
				tags = append(tags, baseTag)
			}
		}
		messages := b.flat[locale]
		for _, key := range slices.Sorted(maps.Keys(messages)) {
			for _, t := range tags {
				if err := message.SetString(t, key, messages[key]); err != nil {
					return fmt.Errorf("register %s/%s: %w", locale, key, err)
				}
			}
		}
	}
	return nil
}

// Resolve maps a requested locale onto the closest catalog locale, so "pt"
// and "pt-PT" resolve to "pt-BR". Unknown or blank locales resolve to
// BaseLocale.
func (b *Bundle) Resolve(locale string) string {
	locale = strings.TrimSpace(locale)
	if _, ok := b.flat[locale]; ok {
		return locale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return BaseLocale
	}
	_, index, conf := b.matcher.Match(tag)
	if conf == language.No {
		return BaseLocale
	}
	return b.tags[index].String()
}

// Printer returns an x/text printer for the resolved locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	return message.NewPrinter(language.Make(b.Resolve(locale)))
}

// Locales lists the catalog locales in sorted order.
func (b *Bundle) Locales() []string {
	return slices.Sorted(maps.Keys(b.flat))
}

// Message looks key up in the resolved locale, then in BaseLocale.
func (b *Bundle) Message(locale, key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	if text, ok := b.flat[b.Resolve(locale)][key]; ok {
		return text, true
	}
	text, ok := b.flat[BaseLocale][key]
	return text, ok
}

// Namespace returns a copy of one namespace for the resolved locale, falling
// back to BaseLocale when the locale lacks it. The returned locale is the
// one that supplied the messages.
func (b *Bundle) Namespace(locale, namespace string) (string, map[string]string) {
	resolved := b.Resolve(locale)
	if messages, ok := b.namespaces[resolved][namespace]; ok {
		return resolved, maps.Clone(messages)
	}
	return BaseLocale, maps.Clone(b.namespaces[BaseLocale][namespace])
}

func mustLoadEmbedded() *Bundle {
	b, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	if err := b.Register(); err != nil {
		panic(err)
	}
	return b
}
