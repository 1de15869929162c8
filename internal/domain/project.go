package domain

import "fmt"

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusInactive ProjectStatus = "inactive"
	ProjectStatusArchived ProjectStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusInactive, ProjectStatusArchived:
		return true
	}
	return false
}

// Project is a unit of work owned by exactly one team.
type Project struct {
	ID           string        `json:"id"`
	TeamID       string        `json:"team_id"`
	Name         string        `json:"name"`
	Plan         Plan          `json:"plan"`
	Integrations []Integration `json:"integrations"`
	Status       ProjectStatus `json:"status"`
	LastUpdated  string        `json:"last_updated"`
	Framework    string        `json:"framework"`
}

// Description is the display summary of the project.
func (p Project) Description() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Plan)
}

// Integration returns the project integration with the given slug.
func (p Project) Integration(slug string) (Integration, bool) {
	for _, in := range p.Integrations {
		if in.Slug == slug {
			return in, true
		}
	}
	return Integration{}, false
}

// Integration is a configured third-party connection scoped to a project.
type Integration struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Icon string `json:"icon"`
}
