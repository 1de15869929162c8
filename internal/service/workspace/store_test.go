package workspace

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/blenvi/blenvi/internal/catalog"
	"github.com/blenvi/blenvi/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cat, err := catalog.New([]domain.Team{
		{ID: "1", Name: "Acme", Plan: domain.PlanFree, Projects: []domain.Project{
			{ID: "a", TeamID: "1", Name: "Alpha", Plan: domain.PlanFree, Status: domain.ProjectStatusActive},
			{ID: "shared", TeamID: "1", Name: "Shared", Plan: domain.PlanFree, Status: domain.ProjectStatusActive},
		}},
		{ID: "2", Name: "Monsters", Plan: domain.PlanPro, Projects: []domain.Project{
			{ID: "b", TeamID: "2", Name: "Beta", Plan: domain.PlanPro, Status: domain.ProjectStatusActive},
			{ID: "shared", TeamID: "2", Name: "Shared Too", Plan: domain.PlanPro, Status: domain.ProjectStatusActive},
		}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewStore(cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func assertConsistent(t *testing.T, sel Selection) {
	t.Helper()
	if (sel.Team == nil) != (sel.TeamID == "") {
		t.Fatalf("team pointer and id disagree: %+v", sel)
	}
	if sel.Team != nil && sel.Team.ID != sel.TeamID {
		t.Fatalf("team id mismatch: %+v", sel)
	}
	if sel.Project != nil {
		if sel.Team == nil {
			t.Fatalf("project selected without team: %+v", sel)
		}
		if _, ok := sel.Team.Project(sel.Project.ID); !ok {
			t.Fatalf("project %q not in team %q", sel.Project.ID, sel.Team.ID)
		}
	}
}

func TestSelectUnknownTeamClearsEverything(t *testing.T) {
	s := newTestStore(t)
	s.SelectTeam("1")
	s.SelectProject("a")
	s.SelectTeam("missing")
	sel := s.Selection()
	if sel.Team != nil || sel.Project != nil || sel.TeamID != "" {
		t.Fatalf("expected empty selection, got %+v", sel)
	}
	assertConsistent(t, sel)
}

func TestSelectTeamThenProject(t *testing.T) {
	s := newTestStore(t)
	s.SelectTeam("1")
	s.SelectProject("a")
	sel := s.Selection()
	if sel.TeamID != "1" || sel.ProjectID != "a" {
		t.Fatalf("unexpected selection %+v", sel)
	}
	assertConsistent(t, sel)
}

func TestSelectProjectWithoutTeamIsNoop(t *testing.T) {
	s := newTestStore(t)
	s.SelectProject("a")
	if sel := s.Selection(); sel.Project != nil {
		t.Fatalf("expected no project, got %+v", sel)
	}
}

func TestSelectUnknownProjectClearsProject(t *testing.T) {
	s := newTestStore(t)
	s.SelectTeam("1")
	s.SelectProject("a")
	s.SelectProject("b")
	sel := s.Selection()
	if sel.Project != nil || sel.TeamID != "1" {
		t.Fatalf("expected team 1 without project, got %+v", sel)
	}
}

func TestSwitchingTeamClearsProjectEvenWithSameID(t *testing.T) {
	s := newTestStore(t)
	s.SelectTeam("1")
	s.SelectProject("shared")
	s.SelectTeam("2")
	sel := s.Selection()
	if sel.TeamID != "2" || sel.Project != nil {
		t.Fatalf("expected team 2 with no project, got %+v", sel)
	}
	assertConsistent(t, sel)
}

func TestInitializeIsIdempotent(t *testing.T) {
	once := newTestStore(t)
	once.Initialize("1", "a")

	twice := newTestStore(t)
	twice.Initialize("1", "a")
	twice.Initialize("1", "a")

	if !reflect.DeepEqual(once.Selection(), twice.Selection()) {
		t.Fatalf("initialize twice differs: %+v vs %+v", once.Selection(), twice.Selection())
	}
}

func TestInitializeSkipsEmptyTeamAndStaleProject(t *testing.T) {
	s := newTestStore(t)
	s.Initialize("", "a")
	if sel := s.Selection(); sel.Team != nil {
		t.Fatalf("empty team id must not select, got %+v", sel)
	}

	s.Initialize("1", "b")
	sel := s.Selection()
	if sel.TeamID != "1" || sel.Project != nil {
		t.Fatalf("stale project should be dropped, got %+v", sel)
	}
	assertConsistent(t, sel)
}

func TestInitializeKeepsProjectWhenOnlyTeamRepeats(t *testing.T) {
	s := newTestStore(t)
	s.Initialize("1", "a")
	s.Initialize("1", "")
	if sel := s.Selection(); sel.ProjectID != "a" {
		t.Fatalf("repeating the team must not reset the project, got %+v", sel)
	}
}

func TestRoleFollowsSelectedTeam(t *testing.T) {
	s := newTestStore(t)
	s.Initialize("1", "a")
	sel := s.Selection()
	if sel.TeamID != "1" || sel.ProjectID != "a" {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if sel.Team.Role() != domain.RoleOwner {
		t.Fatalf("expected Owner, got %s", sel.Team.Role())
	}

	s.SelectTeam("2")
	sel = s.Selection()
	if sel.Project != nil {
		t.Fatalf("expected project cleared, got %+v", sel.Project)
	}
	if sel.Team.Role() != domain.RoleAdmin {
		t.Fatalf("expected Admin, got %s", sel.Team.Role())
	}
}

func TestSelectionIsACopy(t *testing.T) {
	s := newTestStore(t)
	s.SelectTeam("1")
	sel := s.Selection()
	sel.Team.Name = "changed"
	if s.Selection().Team.Name != "Acme" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestProjectsForUnknownTeam(t *testing.T) {
	s := newTestStore(t)
	if got := s.Projects("zzz"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	if got := s.Projects("2"); len(got) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(got))
	}
}
