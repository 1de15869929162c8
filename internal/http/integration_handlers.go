package httpx

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/blenvi/blenvi/internal/service/integration"
)

func (r *Router) handleListIntegrations(w http.ResponseWriter, req *http.Request) {
	defs := r.integrations.Definitions()
	if defs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, defs.All())
}

func (r *Router) handleGetDefinition(w http.ResponseWriter, req *http.Request) {
	defs := r.integrations.Definitions()
	if defs == nil {
		r.notFound(w)
		return
	}
	def, err := defs.Definition(mux.Vars(req)["slug"])
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (r *Router) handleGetIntegrationConfig(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	reveal, _ := strconv.ParseBool(req.URL.Query().Get("reveal"))
	view, err := r.integrations.Get(req.Context(), vars["team"], vars["project"], vars["slug"], reveal)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleSaveIntegrationConfig(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	vars := mux.Vars(req)
	var payload struct {
		Values  map[string]string `json:"values"`
		Enabled *bool             `json:"enabled"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	enabled := true
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	view, err := r.integrations.Save(req.Context(), integration.SaveInput{
		TeamID:    vars["team"],
		ProjectID: vars["project"],
		Slug:      vars["slug"],
		Values:    payload.Values,
		Enabled:   enabled,
		UpdatedBy: info.UserID,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleTestIntegration(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	result, err := r.integrations.TestConnection(req.Context(), vars["team"], vars["project"], vars["slug"])
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
