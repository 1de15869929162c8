package httpx

import (
	"net/http"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/service/auth"
)

type userView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type tokenView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func newUserView(u *domain.User) userView {
	return userView{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

func newTokenView(t auth.TokenPair) tokenView {
	return tokenView{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int64(t.ExpiresIn.Seconds()),
		TokenType:    "Bearer",
	}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), auth.SignupInput{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if r.sessions != nil {
		r.sessions.Open(user)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   newUserView(user),
		"tokens": newTokenView(tokens),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	if r.sessions != nil {
		r.sessions.Open(user)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   newUserView(user),
		"tokens": newTokenView(tokens),
	})
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tokens, err := r.auth.Refresh(req.Context(), payload.RefreshToken)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": newTokenView(tokens)})
}

func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, req, &payload, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	r.auth.Logout(info.Token, payload.RefreshToken)
	if r.sessions != nil {
		r.sessions.Close(info.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	writeJSON(w, http.StatusOK, newUserView(info.User))
}

func (r *Router) handlePasswordReset(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.RequestPasswordReset(req.Context(), payload.Email); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (r *Router) handlePasswordUpdate(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.UpdatePassword(req.Context(), payload.Token, payload.Password); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
