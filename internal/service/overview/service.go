// Package overview assembles the dashboard landing page for a project.
package overview

import (
	"context"
	"errors"
	"log/slog"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/service/integration"
)

// ErrProjectNotFound is returned when the team or project is not in the catalog.
var ErrProjectNotFound = errors.New("project not found")

// Card is a static help card.
type Card struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ActionText  string `json:"action_text"`
	ActionURL   string `json:"action_url"`
	Icon        string `json:"icon"`
}

var cards = []Card{
	{ID: 1, Title: "Integration Setup Guide", Description: "Step-by-step instructions to connect and configure your integrations, making setup and management easy.", ActionText: "View Guide", Icon: "link"},
	{ID: 2, Title: "ENV Documentation", Description: "Best practices and reference for managing your project's environment variables securely and efficiently", ActionText: "View Guide", Icon: "file"},
	{ID: 3, Title: "CLI Installation & Usage", Description: "Learn how to install and use the Blenvi CLI to automate environment extraction and integration tracking.", ActionText: "View Guide", Icon: "terminal"},
	{ID: 4, Title: "Support & Community", Description: "Access FAQs, troubleshooting guides, and connect with other developers for help and best practices.", ActionText: "View Guide", Icon: "message-circle"},
}

// IntegrationSummary is one row of the project integration table.
type IntegrationSummary struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Icon     string `json:"icon"`
	Category string `json:"category,omitempty"`
	Health   int    `json:"health"`
	Status   string `json:"status"`
}

// Overview is the landing page payload.
type Overview struct {
	Team         domain.Team          `json:"team"`
	Project      domain.Project       `json:"project"`
	Role         domain.Role          `json:"role"`
	Cards        []Card               `json:"cards"`
	Integrations []IntegrationSummary `json:"integrations"`
	Connected    int                  `json:"connected"`
}

// TeamLookup finds catalog teams.
type TeamLookup interface {
	Team(id string) (domain.Team, bool)
}

// StatusChecker reports integration connection status.
type StatusChecker interface {
	TestConnection(ctx context.Context, teamID, projectID, slug string) (integration.TestResult, error)
}

// Service builds overviews.
type Service struct {
	teams  TeamLookup
	defs   *integration.Definitions
	status StatusChecker
	logger *slog.Logger
}

// New constructs an overview service.
func New(teams TeamLookup, defs *integration.Definitions, status StatusChecker, logger *slog.Logger) Service {
	return Service{teams: teams, defs: defs, status: status, logger: logger}
}

// Cards returns the static help cards.
func (s Service) Cards() []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

// Build returns the overview for a project.
func (s Service) Build(ctx context.Context, teamID, projectID string) (*Overview, error) {
	if s.teams == nil {
		return nil, ErrProjectNotFound
	}
	team, ok := s.teams.Team(teamID)
	if !ok {
		return nil, ErrProjectNotFound
	}
	project, ok := team.Project(projectID)
	if !ok {
		return nil, ErrProjectNotFound
	}
	ov := &Overview{
		Team:         team,
		Project:      project,
		Role:         team.Role(),
		Cards:        s.Cards(),
		Integrations: make([]IntegrationSummary, 0, len(project.Integrations)),
	}
	for _, in := range project.Integrations {
		row := IntegrationSummary{Name: in.Name, Slug: in.Slug, Icon: in.Icon, Status: "unknown"}
		if s.defs == nil {
			ov.Integrations = append(ov.Integrations, row)
			continue
		}
		if def, err := s.defs.Definition(in.Slug); err == nil {
			row.Category = def.Category
			row.Health = def.Health
			if s.status != nil {
				res, err := s.status.TestConnection(ctx, teamID, projectID, in.Slug)
				if err != nil {
					s.logger.Warn("integration status unavailable", "slug", in.Slug, "error", err)
				} else {
					row.Status = res.Status
				}
			}
		}
		if row.Status == "connected" {
			ov.Connected++
		}
		ov.Integrations = append(ov.Integrations, row)
	}
	return ov, nil
}
