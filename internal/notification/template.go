package notification

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound is returned when no template is registered for a kind.
var ErrTemplateNotFound = errors.New("notification template not found")

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Template is a subject/body pair containing {name} placeholders.
type Template struct {
	Kind    Kind   `yaml:"kind"`
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
}

// TemplateStore is the read-only kind → template mapping.
// It is built once at startup and never mutated, so reads need no locking.
type TemplateStore struct {
	templates map[Kind]Template
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// DefaultTemplates returns the store built from the embedded template file.
func DefaultTemplates() (*TemplateStore, error) {
	return LoadTemplates(defaultTemplatesYAML)
}

// LoadTemplates parses a YAML template document.
func LoadTemplates(data []byte) (*TemplateStore, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return NewTemplateStore(file.Templates...)
}

// NewTemplateStore builds a store from templates. Kinds must be unique and
// every template needs a subject and a body.
func NewTemplateStore(templates ...Template) (*TemplateStore, error) {
	store := &TemplateStore{templates: make(map[Kind]Template, len(templates))}
	for _, t := range templates {
		t.Kind = Kind(strings.TrimSpace(string(t.Kind)))
		if t.Kind == "" {
			return nil, fmt.Errorf("template kind is required")
		}
		if _, dup := store.templates[t.Kind]; dup {
			return nil, fmt.Errorf("duplicate template for kind %s", t.Kind)
		}
		if strings.TrimSpace(t.Subject) == "" {
			return nil, fmt.Errorf("template %s: subject is required", t.Kind)
		}
		if strings.TrimSpace(t.HTML) == "" {
			return nil, fmt.Errorf("template %s: html is required", t.Kind)
		}
		store.templates[t.Kind] = t
	}
	return store, nil
}

// Get returns the template registered for kind.
func (s *TemplateStore) Get(kind Kind) (Template, error) {
	t, ok := s.templates[kind]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, kind)
	}
	return t, nil
}

// Kinds returns the registered kinds in lexical order.
func (s *TemplateStore) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.templates))
	for k := range s.templates {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
