package httpx

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/service/overview"
	"github.com/blenvi/blenvi/internal/service/route"
	"github.com/blenvi/blenvi/internal/service/workspace"
)

type projectView struct {
	domain.Project
	Description string `json:"description"`
}

type teamView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Plan        domain.Plan   `json:"plan"`
	Description string        `json:"description"`
	Role        domain.Role   `json:"role"`
	Projects    []projectView `json:"projects"`
}

type selectionView struct {
	TeamID    string       `json:"selected_team_id,omitempty"`
	ProjectID string       `json:"selected_project_id,omitempty"`
	Team      *teamView    `json:"selected_team"`
	Project   *projectView `json:"selected_project"`
}

func newTeamView(t domain.Team) teamView {
	v := teamView{
		ID:          t.ID,
		Name:        t.Name,
		Plan:        t.Plan,
		Description: t.Description(),
		Role:        t.Role(),
		Projects:    make([]projectView, 0, len(t.Projects)),
	}
	for _, p := range t.Projects {
		v.Projects = append(v.Projects, projectView{Project: p, Description: p.Description()})
	}
	return v
}

func newSelectionView(sel workspace.Selection) selectionView {
	v := selectionView{TeamID: sel.TeamID, ProjectID: sel.ProjectID}
	if sel.Team != nil {
		tv := newTeamView(*sel.Team)
		v.Team = &tv
	}
	if sel.Project != nil {
		v.Project = &projectView{Project: *sel.Project, Description: sel.Project.Description()}
	}
	return v
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	teams := sess.Workspace.Teams()
	out := make([]teamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, newTeamView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleSelection(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSelectionView(sess.Workspace.Selection()))
}

func (r *Router) handleSelectTeam(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	var payload struct {
		TeamID string `json:"team_id"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess.Workspace.SelectTeam(payload.TeamID)
	writeJSON(w, http.StatusOK, newSelectionView(sess.Workspace.Selection()))
}

func (r *Router) handleSelectProject(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	var payload struct {
		ProjectID string `json:"project_id"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess.Workspace.SelectProject(payload.ProjectID)
	writeJSON(w, http.StatusOK, newSelectionView(sess.Workspace.Selection()))
}

// handleDashboard feeds the route ids into the session's workspace and
// resolves the page to render.
func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	vars := mux.Vars(req)
	params := route.Params{
		TeamID:    vars["team"],
		ProjectID: vars["project"],
		Route:     vars["route"],
		Slug:      vars["slug"],
	}
	synced := sess.Bridge.Sync(params)
	page := r.resolver.Resolve(params)
	payload := map[string]any{
		"page":      page,
		"synced":    synced,
		"selection": newSelectionView(sess.Workspace.Selection()),
	}
	if page.Kind == route.PageNotFound {
		writeJSON(w, http.StatusNotFound, payload)
		return
	}
	if page.Kind == route.PageOverview {
		ov, err := r.overview.Build(req.Context(), page.TeamID, page.ProjectID)
		if err != nil && !errors.Is(err, overview.ErrProjectNotFound) {
			r.writeServiceError(w, req, err)
			return
		}
		if ov != nil {
			payload["overview"] = ov
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// withProject rejects team/project path variables that are not in the
// catalog.
func (r *Router) withProject(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		if r.catalog != nil {
			if _, ok := r.catalog.Project(vars["team"], vars["project"]); !ok {
				r.notFound(w)
				return
			}
		}
		next(w, req)
	}
}
