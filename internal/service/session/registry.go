// Package session keeps the per-user dashboard stores alive between
// requests.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
	"github.com/blenvi/blenvi/internal/service/account"
	"github.com/blenvi/blenvi/internal/service/route"
	"github.com/blenvi/blenvi/internal/service/workspace"
)

// Session bundles the stores owned by one signed-in user.
type Session struct {
	UserID    string
	Workspace *workspace.Store
	Account   *account.Store
	Bridge    *route.Bridge
	OpenedAt  time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns the last recorded activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry maps user ids to sessions.
type Registry struct {
	catalog  workspace.Catalog
	profiles repository.ProfileRepository
	notifier account.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(catalog workspace.Catalog, profiles repository.ProfileRepository, notifier account.Notifier, logger *slog.Logger) *Registry {
	return &Registry{
		catalog:  catalog,
		profiles: profiles,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for user, creating it on first use. A new
// session has its account store bound to user but not loaded.
func (r *Registry) Open(user *domain.User) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if sess, ok := r.sessions[user.ID]; ok {
		sess.Touch(now)
		return sess
	}
	ws := workspace.NewStore(r.catalog, r.logger)
	acct := account.NewStore(r.profiles, r.notifier, r.logger.With("user_id", user.ID))
	acct.SetUser(user)
	sess := &Session{
		UserID:    user.ID,
		Workspace: ws,
		Account:   acct,
		Bridge:    route.NewBridge(ws),
		OpenedAt:  now,
		lastSeen:  now,
	}
	r.sessions[user.ID] = sess
	r.logger.Info("session opened", "user_id", user.ID)
	return sess
}

// Get returns an existing session.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[userID]
	return sess, ok
}

// Close drops the user's session. It reports whether one existed.
func (r *Registry) Close(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[userID]
	if !ok {
		return false
	}
	sess.Account.SetUser(nil)
	delete(r.sessions, userID)
	r.logger.Info("session closed", "user_id", userID)
	return true
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.LastSeen().Before(cutoff) {
			sess.Account.SetUser(nil)
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("idle sessions swept", "count", removed)
	}
	return removed
}
