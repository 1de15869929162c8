package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blenvi/blenvi/internal/domain"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	teams := c.Teams()
	if len(teams) == 0 {
		t.Fatalf("expected teams in default catalog")
	}
	team, ok := c.Team("1")
	if !ok {
		t.Fatalf("expected team 1")
	}
	if team.Role() != domain.RoleOwner {
		t.Fatalf("expected owner role for free team, got %s", team.Role())
	}
	if _, ok := c.Project("1", "3"); ok {
		t.Fatalf("project 3 belongs to team 2, not team 1")
	}
	project, ok := c.Project("2", "4")
	if !ok || project.Status != domain.ProjectStatusArchived {
		t.Fatalf("expected archived project 4, got %+v", project)
	}
}

func TestParseJSONCAllowsComments(t *testing.T) {
	raw := []byte(`{
		// a single team
		"teams": [
			{"id": "t1", "name": "One", "plan": "Pro", "projects": [
				{"id": "p1", "name": "P", "integrations": [{"name": "Stripe", "slug": "stripe"},]},
			]},
		],
	}`)
	c, err := ParseJSONC(raw)
	if err != nil {
		t.Fatalf("ParseJSONC: %v", err)
	}
	p, ok := c.Project("t1", "p1")
	if !ok {
		t.Fatalf("expected project p1")
	}
	if p.Plan != domain.PlanPro {
		t.Fatalf("project plan should default to team plan, got %q", p.Plan)
	}
	if p.Status != domain.ProjectStatusActive {
		t.Fatalf("status should default to active, got %q", p.Status)
	}
	if p.TeamID != "t1" {
		t.Fatalf("expected team id to be set, got %q", p.TeamID)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"duplicate team": `teams: [{id: a, name: A, plan: Free}, {id: a, name: B, plan: Pro}]`,
		"bad plan":       `teams: [{id: a, name: A, plan: Gold}]`,
		"dup project":    `teams: [{id: a, name: A, plan: Free, projects: [{id: p}, {id: p}]}]`,
		"bad status":     `teams: [{id: a, name: A, plan: Free, projects: [{id: p, status: paused}]}]`,
		"empty slug":     `teams: [{id: a, name: A, plan: Free, projects: [{id: p, integrations: [{name: X}]}]}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "catalog.yml")
	if err := os.WriteFile(yamlPath, []byte("teams: [{id: x, name: X, plan: Enterprise}]"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if _, ok := c.Team("x"); !ok {
		t.Fatalf("expected team x")
	}

	tomlPath := filepath.Join(dir, "catalog.toml")
	if err := os.WriteFile(tomlPath, []byte(""), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(tomlPath); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected unsupported extension error, got %v", err)
	}

	if c, err := Load(""); err != nil || len(c.Teams()) == 0 {
		t.Fatalf("empty path should load default catalog: %v", err)
	}
}
