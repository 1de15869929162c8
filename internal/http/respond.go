package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
	"github.com/blenvi/blenvi/internal/service/account"
	"github.com/blenvi/blenvi/internal/service/auth"
	"github.com/blenvi/blenvi/internal/service/discussion"
	"github.com/blenvi/blenvi/internal/service/integration"
	"github.com/blenvi/blenvi/internal/service/overview"
	jwtpkg "github.com/blenvi/blenvi/pkg/jwt"
)

// Avatar data URIs are the largest bodies we accept.
const maxBodyBytes = 8 << 20

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON request body into dst. An empty body is allowed
// when optional is set.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// writeServiceError maps service errors onto HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, integration.ErrUnknownIntegration),
		errors.Is(err, discussion.ErrWrongProject),
		errors.Is(err, overview.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrConflict), errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case discussion.IsValidation(err), errors.Is(err, account.ErrInvalidAvatar), errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrAvatarTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenRequired), isTokenError(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isTokenError(err error) bool {
	return errors.Is(err, jwtpkg.ErrWrongPurpose) ||
		errors.Is(err, jwtlib.ErrTokenExpired) ||
		errors.Is(err, jwtlib.ErrTokenMalformed) ||
		errors.Is(err, jwtlib.ErrTokenSignatureInvalid) ||
		errors.Is(err, jwtlib.ErrTokenInvalidClaims) ||
		errors.Is(err, jwtlib.ErrTokenInvalidIssuer)
}
