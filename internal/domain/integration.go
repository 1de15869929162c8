package domain

import (
	"strings"
	"time"
)

// FieldType enumerates integration config input kinds.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypePassword FieldType = "password"
	FieldTypeSelect   FieldType = "select"
	FieldTypeSwitch   FieldType = "switch"
	FieldTypeNumber   FieldType = "number"
)

// ConfigField describes a single integration setting.
type ConfigField struct {
	Key      string    `yaml:"key" json:"key"`
	Label    string    `yaml:"label" json:"label"`
	Type     FieldType `yaml:"type" json:"type"`
	Default  string    `yaml:"default" json:"default,omitempty"`
	Options  []string  `yaml:"options" json:"options,omitempty"`
	Required bool      `yaml:"required" json:"required"`
}

// Secret reports whether values of the field must be encrypted and masked.
func (f ConfigField) Secret() bool {
	if f.Type == FieldTypePassword {
		return true
	}
	k := strings.ToLower(f.Key)
	return strings.Contains(k, "key") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}

// IntegrationDefinition describes a supported third-party service.
type IntegrationDefinition struct {
	Slug        string        `yaml:"slug" json:"slug"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Category    string        `yaml:"category" json:"category"`
	Icon        string        `yaml:"icon" json:"icon"`
	Fields      []ConfigField `yaml:"fields" json:"fields"`
	Features    []string      `yaml:"features" json:"features"`
	Webhooks    []string      `yaml:"webhooks" json:"webhooks"`
	Health      int           `yaml:"health" json:"health"`
}

// Field returns the field definition for key.
func (d IntegrationDefinition) Field(key string) (ConfigField, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return ConfigField{}, false
}

// IntegrationConfig is a stored configuration for one project integration.
// Secret values are kept as ciphertext.
type IntegrationConfig struct {
	TeamID    string
	ProjectID string
	Slug      string
	Values    map[string]string
	Secrets   map[string][]byte
	Enabled   bool
	UpdatedBy string
	UpdatedAt time.Time
}
