package httpx

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/service/account"
)

func (r *Router) handleGetProfile(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	reload, _ := strconv.ParseBool(req.URL.Query().Get("reload"))
	if reload || !sess.Account.Loaded() {
		err := sess.Account.LoadProfile(req.Context())
		r.recordStoreOp("account", "load", err)
		if err != nil {
			r.logger.Error("profile load failed", "user_id", sess.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, account.MsgLoadFailed)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	var payload map[string]string
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := sess.Account.UpdateField(domain.ProfileField(k), payload[k]); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleEditProfile(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	sess.Account.SetEditing(true)
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleSaveProfile(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	err := sess.Account.SaveProfile(req.Context())
	r.recordStoreOp("account", "save", err)
	if err != nil {
		r.logger.Error("profile save failed", "user_id", sess.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, account.MsgSaveFailed)
		return
	}
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleCancelProfile(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	sess.Account.CancelEditing()
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleAvatarPreview(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	var payload struct {
		DataURI string `json:"data_uri"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sess.Account.SetAvatarPreview(payload.DataURI); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleRemoveAvatar(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	sess.Account.RemoveAvatar()
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleAvatarDialog(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	var payload struct {
		Open bool `json:"open"`
	}
	if err := decodeJSON(w, req, &payload, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess.Account.SetAvatarDialogOpen(payload.Open)
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}

func (r *Router) handleConfirmAvatar(w http.ResponseWriter, req *http.Request) {
	sess, _, ok := r.sessionFrom(w, req)
	if !ok {
		return
	}
	sess.Account.ConfirmAvatarChange()
	writeJSON(w, http.StatusOK, sess.Account.Snapshot())
}
