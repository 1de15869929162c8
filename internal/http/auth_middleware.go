package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/service/session"
)

type authContextKey string

type authInfo struct {
	UserID  string
	Email   string
	Token   string
	User    *domain.User
	Session *session.Session
}

const contextKeyAuth authContextKey = "blenvi-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header, opens the user's session
// and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil && req.Method == http.MethodGet {
		// websocket and EventSource clients cannot set headers
		if q := strings.TrimSpace(req.URL.Query().Get("access_token")); q != "" {
			token, err = q, nil
		}
	}
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	user, _, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: user.ID, Email: user.Email, Token: token, User: user}
	if r.sessions != nil {
		info.Session = r.sessions.Open(user)
	}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

// sessionFrom returns the caller's session or writes a 500.
func (r *Router) sessionFrom(w http.ResponseWriter, req *http.Request) (*session.Session, authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok || info.Session == nil {
		r.logger.Error("session missing from request context", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return nil, authInfo{}, false
	}
	return info.Session, info, true
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
