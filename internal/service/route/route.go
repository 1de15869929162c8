// Package route maps dashboard URLs onto workspace selection and pages.
package route

import (
	"strings"
	"sync"

	"github.com/blenvi/blenvi/internal/domain"
)

// Prefix is the path segment every dashboard route starts with.
const Prefix = "dashboard"

// Params are the dynamic segments of /dashboard/<team>/<project>/<route>/<slug>.
type Params struct {
	TeamID    string `json:"team_id"`
	ProjectID string `json:"project_id"`
	Route     string `json:"route,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Extra     int    `json:"-"`
}

// Parse splits a dashboard path into Params. Paths outside /dashboard yield
// zero Params and false.
func Parse(path string) (Params, bool) {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 || segs[0] != Prefix {
		return Params{}, false
	}
	segs = segs[1:]
	var p Params
	fields := []*string{&p.TeamID, &p.ProjectID, &p.Route, &p.Slug}
	for i, s := range segs {
		if i >= len(fields) {
			p.Extra = len(segs) - len(fields)
			break
		}
		*fields[i] = s
	}
	return p, true
}

// Initializer receives route ids. workspace.Store satisfies it.
type Initializer interface {
	Initialize(teamID, projectID string)
}

// Bridge forwards route ids into a workspace store.
type Bridge struct {
	target Initializer

	mu        sync.Mutex
	mounted   bool
	teamID    string
	projectID string
}

// NewBridge returns an unmounted bridge.
func NewBridge(target Initializer) *Bridge {
	return &Bridge{target: target}
}

// Sync initializes the target on every call, so a selection changed
// elsewhere is brought back in line with the route. It reports whether the
// ids differ from the previous call.
func (b *Bridge) Sync(p Params) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := !b.mounted || b.teamID != p.TeamID || b.projectID != p.ProjectID
	b.mounted = true
	b.teamID, b.projectID = p.TeamID, p.ProjectID
	b.target.Initialize(p.TeamID, p.ProjectID)
	return changed
}

// PageKind identifies the dashboard page to render.
type PageKind string

const (
	PageOverview    PageKind = "overview"
	PageTeam        PageKind = "team"
	PageWorkflow    PageKind = "workflow"
	PageAccount     PageKind = "account"
	PageConfigure   PageKind = "configure"
	PageIntegration PageKind = "integration"
	PageNotFound    PageKind = "not_found"
)

// Page is the result of resolving Params.
type Page struct {
	Kind      PageKind `json:"kind"`
	TeamID    string   `json:"team_id,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	Slug      string   `json:"slug,omitempty"`
}

// TeamLookup finds catalog teams.
type TeamLookup interface {
	Team(id string) (domain.Team, bool)
}

// IntegrationLookup reports whether an integration slug is defined.
type IntegrationLookup interface {
	Known(slug string) bool
}

// Resolver maps Params onto pages.
type Resolver struct {
	teams        TeamLookup
	integrations IntegrationLookup
}

// NewResolver builds a resolver. Either lookup may be nil to skip that check.
func NewResolver(teams TeamLookup, integrations IntegrationLookup) Resolver {
	return Resolver{teams: teams, integrations: integrations}
}

// Resolve never fails: anything it cannot map becomes PageNotFound.
func (r Resolver) Resolve(p Params) Page {
	notFound := Page{Kind: PageNotFound, TeamID: p.TeamID, ProjectID: p.ProjectID}
	if p.TeamID == "" || p.ProjectID == "" || p.Extra > 0 {
		return notFound
	}
	if r.teams != nil {
		team, ok := r.teams.Team(p.TeamID)
		if !ok {
			return notFound
		}
		if _, ok := team.Project(p.ProjectID); !ok {
			return notFound
		}
	}
	page := Page{TeamID: p.TeamID, ProjectID: p.ProjectID}
	switch p.Route {
	case "":
		page.Kind = PageOverview
	case "team":
		page.Kind = PageTeam
	case "workflow":
		page.Kind = PageWorkflow
	case "account":
		page.Kind = PageAccount
	case "configure":
		page.Kind = PageConfigure
	case "integration":
		if p.Slug == "" {
			return notFound
		}
		if r.integrations != nil && !r.integrations.Known(p.Slug) {
			return notFound
		}
		page.Kind = PageIntegration
		page.Slug = p.Slug
	default:
		return notFound
	}
	if page.Kind != PageIntegration && p.Slug != "" {
		return notFound
	}
	return page
}
