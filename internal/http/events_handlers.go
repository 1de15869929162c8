package httpx

import (
	"net/http"
	"time"

	"github.com/blenvi/blenvi/internal/ws"
)

// eventTopics returns the user's own topic plus the project topic when
// team_id and project_id are given and known.
func (r *Router) eventTopics(req *http.Request, userID string) []string {
	topics := []string{ws.UserTopic(userID)}
	q := req.URL.Query()
	teamID, projectID := q.Get("team_id"), q.Get("project_id")
	if teamID == "" || projectID == "" {
		return topics
	}
	if r.catalog != nil {
		if _, ok := r.catalog.Project(teamID, projectID); !ok {
			return topics
		}
	}
	return append(topics, ws.ProjectTopic(teamID, projectID))
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for events websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime events disabled")
		return
	}
	topics := r.eventTopics(req, info.UserID)
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	for _, topic := range topics {
		r.hub.Register(topic, client)
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		for _, topic := range topics {
			r.hub.Unregister(topic, client)
		}
		client.Close()
	}()
	go r.keepAlive(client, done)
	client.Wait()
}

// keepAlive pings the websocket peer until done is closed or a ping fails.
func (r *Router) keepAlive(client *ws.Client, done <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleEventsSSE(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime events disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	topics := r.eventTopics(req, info.UserID)
	for _, topic := range topics {
		r.hub.Register(topic, client)
	}
	defer func() {
		for _, topic := range topics {
			r.hub.Unregister(topic, client)
		}
		client.Close()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
