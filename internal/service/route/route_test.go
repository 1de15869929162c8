package route

import (
	"io"
	"log/slog"
	"testing"

	"github.com/blenvi/blenvi/internal/catalog"
	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/service/workspace"
)

type countingInitializer struct {
	calls [][2]string
}

func (c *countingInitializer) Initialize(teamID, projectID string) {
	c.calls = append(c.calls, [2]string{teamID, projectID})
}

type teamsStub map[string]domain.Team

func (t teamsStub) Team(id string) (domain.Team, bool) {
	team, ok := t[id]
	return team, ok
}

type slugsStub map[string]bool

func (s slugsStub) Known(slug string) bool { return s[slug] }

func TestParse(t *testing.T) {
	cases := []struct {
		path string
		want Params
		ok   bool
	}{
		{"/dashboard/1/a", Params{TeamID: "1", ProjectID: "a"}, true},
		{"/dashboard/1/a/integration/stripe", Params{TeamID: "1", ProjectID: "a", Route: "integration", Slug: "stripe"}, true},
		{"dashboard/1//a/", Params{TeamID: "1", ProjectID: "a"}, true},
		{"/dashboard/1/a/b/c/d", Params{TeamID: "1", ProjectID: "a", Route: "b", Slug: "c", Extra: 1}, true},
		{"/auth/login", Params{}, false},
		{"/", Params{}, false},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.path)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Parse(%q) = %+v, %v; want %+v, %v", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBridgeSyncReportsChanges(t *testing.T) {
	target := &countingInitializer{}
	b := NewBridge(target)

	if !b.Sync(Params{TeamID: "1", ProjectID: "a"}) {
		t.Fatalf("first sync must report a change")
	}
	if b.Sync(Params{TeamID: "1", ProjectID: "a", Route: "team"}) {
		t.Fatalf("same ids must not report a change")
	}
	if !b.Sync(Params{TeamID: "1", ProjectID: "b"}) {
		t.Fatalf("changed project must report a change")
	}
	if len(target.calls) != 3 {
		t.Fatalf("expected initialize on every sync, got %v", target.calls)
	}
}

func TestBridgeMountsWithEmptyIDs(t *testing.T) {
	target := &countingInitializer{}
	b := NewBridge(target)
	if !b.Sync(Params{}) {
		t.Fatalf("mount must report a change")
	}
	if b.Sync(Params{}) {
		t.Fatalf("second empty sync must not report a change")
	}
	if len(target.calls) != 2 || target.calls[0] != [2]string{} {
		t.Fatalf("unexpected calls %v", target.calls)
	}
}

func TestBridgeRestoresSelectionChangedElsewhere(t *testing.T) {
	cat, err := catalog.New([]domain.Team{
		{ID: "1", Name: "Acme", Plan: domain.PlanFree, Projects: []domain.Project{{ID: "a", TeamID: "1", Name: "Alpha", Plan: domain.PlanFree, Status: domain.ProjectStatusActive}}},
		{ID: "2", Name: "Monsters", Plan: domain.PlanPro, Projects: []domain.Project{{ID: "b", TeamID: "2", Name: "Beta", Plan: domain.PlanPro, Status: domain.ProjectStatusActive}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := workspace.NewStore(cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b := NewBridge(store)

	b.Sync(Params{TeamID: "1", ProjectID: "a"})
	store.SelectTeam("2")
	b.Sync(Params{TeamID: "1", ProjectID: "a"})

	sel := store.Selection()
	if sel.TeamID != "1" || sel.ProjectID != "a" {
		t.Fatalf("route must drive the selection, got team=%q project=%q", sel.TeamID, sel.ProjectID)
	}
}

func TestResolve(t *testing.T) {
	teams := teamsStub{
		"1": {ID: "1", Plan: domain.PlanFree, Projects: []domain.Project{{ID: "a"}}},
	}
	r := NewResolver(teams, slugsStub{"stripe": true})

	cases := []struct {
		params Params
		want   PageKind
	}{
		{Params{TeamID: "1", ProjectID: "a"}, PageOverview},
		{Params{TeamID: "1", ProjectID: "a", Route: "team"}, PageTeam},
		{Params{TeamID: "1", ProjectID: "a", Route: "workflow"}, PageWorkflow},
		{Params{TeamID: "1", ProjectID: "a", Route: "account"}, PageAccount},
		{Params{TeamID: "1", ProjectID: "a", Route: "configure"}, PageConfigure},
		{Params{TeamID: "1", ProjectID: "a", Route: "integration", Slug: "stripe"}, PageIntegration},
		{Params{TeamID: "1", ProjectID: "a", Route: "integration", Slug: "paypal"}, PageNotFound},
		{Params{TeamID: "1", ProjectID: "a", Route: "integration"}, PageNotFound},
		{Params{TeamID: "1", ProjectID: "a", Route: "billing"}, PageNotFound},
		{Params{TeamID: "1", ProjectID: "a", Route: "team", Slug: "x"}, PageNotFound},
		{Params{TeamID: "1"}, PageNotFound},
		{Params{ProjectID: "a"}, PageNotFound},
		{Params{TeamID: "9", ProjectID: "a"}, PageNotFound},
		{Params{TeamID: "1", ProjectID: "z"}, PageNotFound},
	}
	for _, tc := range cases {
		if got := r.Resolve(tc.params); got.Kind != tc.want {
			t.Fatalf("Resolve(%+v) = %s, want %s", tc.params, got.Kind, tc.want)
		}
	}
}

func TestResolveWithoutLookups(t *testing.T) {
	r := NewResolver(nil, nil)
	page := r.Resolve(Params{TeamID: "x", ProjectID: "y", Route: "integration", Slug: "anything"})
	if page.Kind != PageIntegration || page.Slug != "anything" {
		t.Fatalf("unexpected page %+v", page)
	}
}
