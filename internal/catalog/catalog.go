// Package catalog loads the static team/project/integration catalog that the
// dashboard stores select from. The catalog is read once at start up and is
// immutable afterwards.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/blenvi/blenvi/internal/domain"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// ErrInvalidCatalog wraps every validation failure.
var ErrInvalidCatalog = errors.New("catalog: invalid")

// Catalog is the ordered list of teams available to every session.
type Catalog struct {
	teams []domain.Team
}

type fileIntegration struct {
	Name string `yaml:"name" json:"name"`
	Slug string `yaml:"slug" json:"slug"`
	Icon string `yaml:"icon" json:"icon"`
}

type fileProject struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Plan         string            `yaml:"plan" json:"plan"`
	Status       string            `yaml:"status" json:"status"`
	LastUpdated  string            `yaml:"lastUpdated" json:"lastUpdated"`
	Framework    string            `yaml:"framework" json:"framework"`
	Integrations []fileIntegration `yaml:"integrations" json:"integrations"`
}

type fileTeam struct {
	ID       string        `yaml:"id" json:"id"`
	Name     string        `yaml:"name" json:"name"`
	Plan     string        `yaml:"plan" json:"plan"`
	Projects []fileProject `yaml:"projects" json:"projects"`
}

type fileCatalog struct {
	Teams []fileTeam `yaml:"teams" json:"teams"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return ParseYAML(defaultCatalog)
}

// Load reads a catalog file. ".yaml"/".yml" files are decoded as YAML,
// ".json"/".jsonc" as JSON with comments and trailing commas allowed.
// An empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(raw)
	case ".json", ".jsonc":
		return ParseJSONC(raw)
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrInvalidCatalog, filepath.Ext(path))
	}
}

// ParseYAML decodes and validates a YAML catalog document.
func ParseYAML(raw []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	return build(doc)
}

// ParseJSONC decodes and validates a JSON catalog that may carry comments.
func ParseJSONC(raw []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode catalog json: %w", err)
	}
	return build(doc)
}

// New builds a catalog from already constructed teams. Used by tests and
// callers that assemble catalogs in code.
func New(teams []domain.Team) (*Catalog, error) {
	if err := validate(teams); err != nil {
		return nil, err
	}
	return &Catalog{teams: teams}, nil
}

func build(doc fileCatalog) (*Catalog, error) {
	teams := make([]domain.Team, 0, len(doc.Teams))
	for _, ft := range doc.Teams {
		team := domain.Team{
			ID:       strings.TrimSpace(ft.ID),
			Name:     ft.Name,
			Plan:     domain.Plan(ft.Plan),
			Projects: make([]domain.Project, 0, len(ft.Projects)),
		}
		for _, fp := range ft.Projects {
			status := domain.ProjectStatus(fp.Status)
			if status == "" {
				status = domain.ProjectStatusActive
			}
			project := domain.Project{
				ID:          strings.TrimSpace(fp.ID),
				TeamID:      team.ID,
				Name:        fp.Name,
				Plan:        domain.Plan(fp.Plan),
				Status:      status,
				LastUpdated: fp.LastUpdated,
				Framework:   fp.Framework,
			}
			if project.Plan == "" {
				project.Plan = team.Plan
			}
			for _, fi := range fp.Integrations {
				project.Integrations = append(project.Integrations, domain.Integration{
					Name: fi.Name,
					Slug: strings.TrimSpace(fi.Slug),
					Icon: fi.Icon,
				})
			}
			team.Projects = append(team.Projects, project)
		}
		teams = append(teams, team)
	}
	return New(teams)
}

func validate(teams []domain.Team) error {
	seenTeams := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		if t.ID == "" {
			return fmt.Errorf("%w: team %q has empty id", ErrInvalidCatalog, t.Name)
		}
		if _, dup := seenTeams[t.ID]; dup {
			return fmt.Errorf("%w: duplicate team id %q", ErrInvalidCatalog, t.ID)
		}
		seenTeams[t.ID] = struct{}{}
		if !t.Plan.Valid() {
			return fmt.Errorf("%w: team %q has unknown plan %q", ErrInvalidCatalog, t.ID, t.Plan)
		}
		seenProjects := make(map[string]struct{}, len(t.Projects))
		for _, p := range t.Projects {
			if p.ID == "" {
				return fmt.Errorf("%w: team %q has a project with empty id", ErrInvalidCatalog, t.ID)
			}
			if _, dup := seenProjects[p.ID]; dup {
				return fmt.Errorf("%w: duplicate project id %q in team %q", ErrInvalidCatalog, p.ID, t.ID)
			}
			seenProjects[p.ID] = struct{}{}
			if !p.Plan.Valid() {
				return fmt.Errorf("%w: project %q has unknown plan %q", ErrInvalidCatalog, p.ID, p.Plan)
			}
			if !p.Status.Valid() {
				return fmt.Errorf("%w: project %q has unknown status %q", ErrInvalidCatalog, p.ID, p.Status)
			}
			seenSlugs := make(map[string]struct{}, len(p.Integrations))
			for _, in := range p.Integrations {
				if in.Slug == "" {
					return fmt.Errorf("%w: project %q has an integration with empty slug", ErrInvalidCatalog, p.ID)
				}
				if _, dup := seenSlugs[in.Slug]; dup {
					return fmt.Errorf("%w: duplicate integration %q in project %q", ErrInvalidCatalog, in.Slug, p.ID)
				}
				seenSlugs[in.Slug] = struct{}{}
			}
		}
	}
	return nil
}

// Teams returns a copy of the catalog teams in declaration order.
func (c *Catalog) Teams() []domain.Team {
	out := make([]domain.Team, len(c.teams))
	copy(out, c.teams)
	return out
}

// Team looks up a team by id.
func (c *Catalog) Team(id string) (domain.Team, bool) {
	for _, t := range c.teams {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Team{}, false
}

// Project looks up a project inside the given team.
func (c *Catalog) Project(teamID, projectID string) (domain.Project, bool) {
	team, ok := c.Team(teamID)
	if !ok {
		return domain.Project{}, false
	}
	return team.Project(projectID)
}
