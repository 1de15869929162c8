package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/blenvi/blenvi/internal/service/discussion"
)

func (r *Router) handleListDiscussion(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	msgs, err := r.discussion.List(req.Context(), vars["team"], vars["project"], limit)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (r *Router) handlePostDiscussion(w http.ResponseWriter, req *http.Request) {
	input, ok := r.discussionInput(w, req)
	if !ok {
		return
	}
	msg, err := r.discussion.Post(req.Context(), input)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (r *Router) handleReplyDiscussion(w http.ResponseWriter, req *http.Request) {
	input, ok := r.discussionInput(w, req)
	if !ok {
		return
	}
	msg, err := r.discussion.Reply(req.Context(), mux.Vars(req)["id"], input)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (r *Router) handleReactDiscussion(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	var payload struct {
		Emoji string `json:"emoji"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	counts, err := r.discussion.React(req.Context(), vars["team"], vars["project"], vars["id"], payload.Emoji)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": vars["id"], "reactions": counts})
}

func (r *Router) discussionInput(w http.ResponseWriter, req *http.Request) (discussion.PostInput, bool) {
	sess, info, ok := r.sessionFrom(w, req)
	if !ok {
		return discussion.PostInput{}, false
	}
	var payload struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return discussion.PostInput{}, false
	}
	vars := mux.Vars(req)
	profile := sess.Account.Snapshot().Profile
	return discussion.PostInput{
		TeamID:     vars["team"],
		ProjectID:  vars["project"],
		AuthorID:   info.UserID,
		AuthorName: authorName(profile.FirstName, profile.LastName, info),
		Body:       payload.Body,
	}, true
}

func authorName(first, last string, info authInfo) string {
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	if info.User != nil {
		if name := strings.TrimSpace(info.User.FirstName + " " + info.User.LastName); name != "" {
			return name
		}
	}
	return info.Email
}
