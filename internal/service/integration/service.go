package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
	"github.com/blenvi/blenvi/internal/ws"
	"github.com/blenvi/blenvi/pkg/crypto"
)

// Mask replaces secret values in responses. Sending it back on save keeps
// the stored secret.
const Mask = "********"

// Publisher broadcasts events to hub topics.
type Publisher interface {
	Publish(topic, eventType string, data any) error
}

// Service manages per-project integration configuration.
type Service struct {
	defs    *Definitions
	configs repository.IntegrationConfigRepository
	sealer  *crypto.Sealer
	events  Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a Service. events may be nil.
func New(defs *Definitions, configs repository.IntegrationConfigRepository, sealer *crypto.Sealer, events Publisher, logger *slog.Logger) Service {
	return Service{
		defs:    defs,
		configs: configs,
		sealer:  sealer,
		events:  events,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Definitions exposes the definition catalog.
func (s Service) Definitions() *Definitions {
	return s.defs
}

// SaveInput carries a configuration update.
type SaveInput struct {
	TeamID    string
	ProjectID string
	Slug      string
	Values    map[string]string
	Enabled   bool
	UpdatedBy string
}

// View is a configuration as returned to clients.
type View struct {
	TeamID     string            `json:"team_id"`
	ProjectID  string            `json:"project_id"`
	Slug       string            `json:"slug"`
	Values     map[string]string `json:"values"`
	Secrets    []string          `json:"secrets"`
	Enabled    bool              `json:"enabled"`
	Configured bool              `json:"configured"`
	UpdatedBy  string            `json:"updated_by,omitempty"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
}

// TestResult is the outcome of TestConnection.
type TestResult struct {
	OK        bool          `json:"ok"`
	Status    string        `json:"status"`
	Missing   []string      `json:"missing,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Save validates and stores a configuration. Secret fields are encrypted.
func (s Service) Save(ctx context.Context, in SaveInput) (*View, error) {
	if in.TeamID == "" || in.ProjectID == "" {
		return nil, domain.NewValidationError("project", "team and project are required")
	}
	def, err := s.defs.Definition(in.Slug)
	if err != nil {
		return nil, err
	}
	for key := range in.Values {
		if _, ok := def.Field(key); !ok {
			return nil, domain.NewValidationError(key, "unknown configuration field")
		}
	}

	existing, err := s.configs.GetIntegrationConfig(ctx, in.TeamID, in.ProjectID, in.Slug)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load integration config: %w", err)
	}

	cfg := &domain.IntegrationConfig{
		TeamID:    in.TeamID,
		ProjectID: in.ProjectID,
		Slug:      in.Slug,
		Values:    make(map[string]string),
		Secrets:   make(map[string][]byte),
		Enabled:   in.Enabled,
		UpdatedBy: in.UpdatedBy,
		UpdatedAt: s.now(),
	}
	for _, field := range def.Fields {
		value, provided := in.Values[field.Key]
		value = strings.TrimSpace(value)
		if field.Secret() {
			if (!provided || value == Mask) && existing != nil {
				if sealed, ok := existing.Secrets[field.Key]; ok {
					cfg.Secrets[field.Key] = sealed
					continue
				}
			}
			if value == "" || value == Mask {
				if field.Required {
					return nil, domain.NewValidationError(field.Key, "is required")
				}
				continue
			}
			sealed, err := s.sealer.Seal(value, additionalData(in.TeamID, in.ProjectID, in.Slug, field.Key))
			if err != nil {
				return nil, fmt.Errorf("encrypt %s: %w", field.Key, err)
			}
			cfg.Secrets[field.Key] = sealed
			continue
		}
		if !provided {
			value = field.Default
		}
		if err := validateValue(field, value); err != nil {
			return nil, err
		}
		if value != "" {
			cfg.Values[field.Key] = value
		}
	}

	if err := s.configs.UpsertIntegrationConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save integration config: %w", err)
	}
	s.logger.Info("integration configured", "team_id", in.TeamID, "project_id", in.ProjectID, "slug", in.Slug, "user_id", in.UpdatedBy)
	view, err := s.view(def, cfg, false)
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		if err := s.events.Publish(ws.ProjectTopic(in.TeamID, in.ProjectID), "integration.updated", view); err != nil {
			s.logger.Warn("publish integration update failed", "error", err)
		}
	}
	return view, nil
}

// Get returns the stored configuration merged over the field defaults.
// Secret values are masked unless reveal is set.
func (s Service) Get(ctx context.Context, teamID, projectID, slug string, reveal bool) (*View, error) {
	def, err := s.defs.Definition(slug)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetIntegrationConfig(ctx, teamID, projectID, slug)
	if errors.Is(err, repository.ErrNotFound) {
		view, vErr := s.view(def, &domain.IntegrationConfig{TeamID: teamID, ProjectID: projectID, Slug: slug}, reveal)
		if vErr != nil {
			return nil, vErr
		}
		view.Configured = false
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load integration config: %w", err)
	}
	return s.view(def, cfg, reveal)
}

// TestConnection checks that the stored configuration is complete and that
// every secret can be decrypted.
func (s Service) TestConnection(ctx context.Context, teamID, projectID, slug string) (TestResult, error) {
	started := time.Now()
	def, err := s.defs.Definition(slug)
	if err != nil {
		return TestResult{}, err
	}
	result := TestResult{Status: "not_configured"}
	cfg, err := s.configs.GetIntegrationConfig(ctx, teamID, projectID, slug)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		for _, f := range def.Fields {
			if f.Required {
				result.Missing = append(result.Missing, f.Key)
			}
		}
	case err != nil:
		return TestResult{}, fmt.Errorf("load integration config: %w", err)
	default:
		for _, f := range def.Fields {
			if f.Secret() {
				sealed, ok := cfg.Secrets[f.Key]
				if !ok {
					if f.Required {
						result.Missing = append(result.Missing, f.Key)
					}
					continue
				}
				if _, err := s.sealer.Open(sealed, additionalData(teamID, projectID, slug, f.Key)); err != nil {
					s.logger.Warn("integration secret unreadable", "slug", slug, "field", f.Key, "error", err)
					result.Missing = append(result.Missing, f.Key)
				}
				continue
			}
			if f.Required && cfg.Values[f.Key] == "" {
				result.Missing = append(result.Missing, f.Key)
			}
		}
		switch {
		case len(result.Missing) > 0:
			result.Status = "incomplete"
		case !cfg.Enabled:
			result.Status = "disabled"
		default:
			result.OK = true
			result.Status = "connected"
		}
	}
	result.Latency = time.Since(started)
	result.CheckedAt = s.now()
	return result, nil
}

func (s Service) view(def domain.IntegrationDefinition, cfg *domain.IntegrationConfig, reveal bool) (*View, error) {
	v := &View{
		TeamID:     cfg.TeamID,
		ProjectID:  cfg.ProjectID,
		Slug:       def.Slug,
		Values:     make(map[string]string, len(def.Fields)),
		Secrets:    []string{},
		Enabled:    cfg.Enabled,
		Configured: true,
		UpdatedBy:  cfg.UpdatedBy,
	}
	if !cfg.UpdatedAt.IsZero() {
		at := cfg.UpdatedAt
		v.UpdatedAt = &at
	}
	for _, f := range def.Fields {
		if f.Secret() {
			sealed, ok := cfg.Secrets[f.Key]
			if !ok {
				v.Values[f.Key] = ""
				continue
			}
			v.Secrets = append(v.Secrets, f.Key)
			if !reveal {
				v.Values[f.Key] = Mask
				continue
			}
			plain, err := s.sealer.Open(sealed, additionalData(cfg.TeamID, cfg.ProjectID, cfg.Slug, f.Key))
			if err != nil {
				return nil, fmt.Errorf("decrypt %s: %w", f.Key, err)
			}
			v.Values[f.Key] = plain
			continue
		}
		if value, ok := cfg.Values[f.Key]; ok {
			v.Values[f.Key] = value
		} else {
			v.Values[f.Key] = f.Default
		}
	}
	sort.Strings(v.Secrets)
	return v, nil
}

func validateValue(f domain.ConfigField, value string) error {
	if value == "" {
		if f.Required {
			return domain.NewValidationError(f.Key, "is required")
		}
		return nil
	}
	switch f.Type {
	case domain.FieldTypeSelect:
		for _, opt := range f.Options {
			if opt == value {
				return nil
			}
		}
		return domain.NewValidationError(f.Key, fmt.Sprintf("must be one of %s", strings.Join(f.Options, ", ")))
	case domain.FieldTypeSwitch:
		if _, err := strconv.ParseBool(value); err != nil {
			return domain.NewValidationError(f.Key, "must be true or false")
		}
	case domain.FieldTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return domain.NewValidationError(f.Key, "must be a number")
		}
	}
	return nil
}

func additionalData(teamID, projectID, slug, key string) []byte {
	return []byte(teamID + "/" + projectID + "/" + slug + "/" + key)
}
