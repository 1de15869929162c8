// Package workspace holds the team and project selection of one dashboard
// session.
package workspace

import (
	"log/slog"
	"sync"

	"github.com/blenvi/blenvi/internal/domain"
)

// Catalog is the read-only team source the store selects from.
type Catalog interface {
	Teams() []domain.Team
	Team(id string) (domain.Team, bool)
}

// Selection is a consistent snapshot of the store.
// Team is non-nil iff TeamID names a catalog team; Project is non-nil only
// when it belongs to Team.
type Selection struct {
	TeamID    string          `json:"selectedTeamId,omitempty"`
	ProjectID string          `json:"selectedProjectId,omitempty"`
	Team      *domain.Team    `json:"selectedTeam,omitempty"`
	Project   *domain.Project `json:"selectedProject,omitempty"`
}

// Store is safe for concurrent use.
type Store struct {
	catalog Catalog
	logger  *slog.Logger

	mu      sync.RWMutex
	team    *domain.Team
	project *domain.Project
}

// NewStore returns a store with nothing selected.
func NewStore(catalog Catalog, logger *slog.Logger) *Store {
	return &Store{catalog: catalog, logger: logger}
}

// Teams returns the full catalog.
func (s *Store) Teams() []domain.Team {
	return s.catalog.Teams()
}

// Projects returns the projects of teamID, or nil for an unknown team.
func (s *Store) Projects(teamID string) []domain.Project {
	team, ok := s.catalog.Team(teamID)
	if !ok {
		return nil
	}
	return team.Projects
}

// SelectTeam selects teamID and clears the project. An unknown id leaves
// nothing selected.
func (s *Store) SelectTeam(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectTeamLocked(teamID)
}

// SelectProject selects projectID within the selected team. Without a
// selected team it does nothing; an unknown id clears the project.
func (s *Store) SelectProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectProjectLocked(projectID)
}

// Initialize applies route ids. It is idempotent: a selection that already
// matches is left untouched, and a project id that is not part of the team
// is dropped.
func (s *Store) Initialize(teamID, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if teamID == "" {
		return
	}
	if s.team == nil || s.team.ID != teamID {
		s.selectTeamLocked(teamID)
	}
	if s.team == nil || projectID == "" {
		return
	}
	if s.project != nil && s.project.ID == projectID {
		return
	}
	if _, ok := s.team.Project(projectID); ok {
		s.selectProjectLocked(projectID)
	} else if s.logger != nil {
		s.logger.Debug("workspace: ignoring unknown project", "team_id", teamID, "project_id", projectID)
	}
}

// Selection returns a copy of the current selection.
func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sel Selection
	if s.team != nil {
		team := *s.team
		sel.TeamID = team.ID
		sel.Team = &team
	}
	if s.project != nil {
		project := *s.project
		sel.ProjectID = project.ID
		sel.Project = &project
	}
	return sel
}

func (s *Store) selectTeamLocked(teamID string) {
	s.project = nil
	team, ok := s.catalog.Team(teamID)
	if !ok {
		s.team = nil
		return
	}
	s.team = &team
}

func (s *Store) selectProjectLocked(projectID string) {
	if s.team == nil {
		return
	}
	project, ok := s.team.Project(projectID)
	if !ok {
		s.project = nil
		return
	}
	s.project = &project
}
