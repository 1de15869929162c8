package integration

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/blenvi/blenvi/internal/domain"
)

//go:embed definitions.yaml
var embeddedDefinitions []byte

// ErrUnknownIntegration is returned for slugs without a definition.
var ErrUnknownIntegration = errors.New("unknown integration")

// Definitions is the immutable set of supported integrations.
type Definitions struct {
	ordered []domain.IntegrationDefinition
	bySlug  map[string]domain.IntegrationDefinition
}

// DefaultDefinitions returns the definitions compiled into the binary.
func DefaultDefinitions() (*Definitions, error) {
	return ParseDefinitions(embeddedDefinitions)
}

// ParseDefinitions decodes a YAML list of definitions.
func ParseDefinitions(raw []byte) (*Definitions, error) {
	var defs []domain.IntegrationDefinition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("decode integration definitions: %w", err)
	}
	d := &Definitions{bySlug: make(map[string]domain.IntegrationDefinition, len(defs))}
	for _, def := range defs {
		if def.Slug == "" {
			return nil, fmt.Errorf("integration %q has no slug", def.Name)
		}
		if _, dup := d.bySlug[def.Slug]; dup {
			return nil, fmt.Errorf("duplicate integration slug %q", def.Slug)
		}
		seen := make(map[string]struct{}, len(def.Fields))
		for i, f := range def.Fields {
			if _, dup := seen[f.Key]; dup {
				return nil, fmt.Errorf("integration %q: duplicate field %q", def.Slug, f.Key)
			}
			seen[f.Key] = struct{}{}
			if f.Type == "" {
				def.Fields[i].Type = domain.FieldTypeText
			}
		}
		d.ordered = append(d.ordered, def)
		d.bySlug[def.Slug] = def
	}
	return d, nil
}

// All returns the definitions in declaration order.
func (d *Definitions) All() []domain.IntegrationDefinition {
	out := make([]domain.IntegrationDefinition, len(d.ordered))
	copy(out, d.ordered)
	return out
}

// Definition looks up a definition by slug.
func (d *Definitions) Definition(slug string) (domain.IntegrationDefinition, error) {
	def, ok := d.bySlug[slug]
	if !ok {
		return domain.IntegrationDefinition{}, ErrUnknownIntegration
	}
	return def, nil
}

// Known reports whether slug has a definition.
func (d *Definitions) Known(slug string) bool {
	_, ok := d.bySlug[slug]
	return ok
}
