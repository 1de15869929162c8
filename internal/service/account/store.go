// Package account implements the profile edit lifecycle of one signed-in
// user: load, edit, save or cancel, plus the staged avatar flow.
//
// LoadProfile and SaveProfile each take an operation token when they start.
// A result is applied only while its token is the most recent one issued, so
// a slow response can never overwrite the outcome of a later operation.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
)

// PlaceholderAvatar is shown when no avatar is staged or committed.
const PlaceholderAvatar = "/placeholder.svg"

// MaxBioLength is the longest accepted bio, in characters.
const MaxBioLength = 500

// User-facing notification messages.
const (
	MsgLoadFailed    = "Error loading user data!"
	MsgCreateFailed  = "Failed to create user profile"
	MsgSaveSucceeded = "Profile updated successfully!"
	MsgSaveFailed    = "Error updating the data!"
	MsgAvatarUpdated = "Avatar updated!"
)

// Notification kinds.
const (
	KindSuccess = "success"
	KindError   = "error"
)

// Notification is a transient message for the user.
type Notification struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notifier delivers notifications to a user.
type Notifier interface {
	Notify(userID string, n Notification)
}

// Snapshot is a consistent copy of the store state.
type Snapshot struct {
	UserID           string         `json:"user_id,omitempty"`
	Email            string         `json:"email,omitempty"`
	Profile          domain.Profile `json:"profile"`
	Original         domain.Profile `json:"original"`
	Loaded           bool           `json:"loaded"`
	Editing          bool           `json:"editing"`
	AvatarDialogOpen bool           `json:"avatar_dialog_open"`
	AvatarPreview    string         `json:"avatar_preview,omitempty"`
	DisplayAvatar    string         `json:"display_avatar"`
	Initials         string         `json:"initials"`
	Loading          bool           `json:"loading"`
	Saving           bool           `json:"saving"`
}

// Store is safe for concurrent use. The mutex is never held across
// repository calls.
type Store struct {
	profiles repository.ProfileRepository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	user       *domain.User
	profile    domain.Profile
	original   domain.Profile
	loaded     bool
	editing    bool
	dialogOpen bool
	preview    string
	loading    int
	saving     int
	latest     uint64
}

// NewStore builds an empty store. notifier may be nil.
func NewStore(profiles repository.ProfileRepository, notifier Notifier, logger *slog.Logger) *Store {
	return &Store{
		profiles: profiles,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetUser replaces the identity. It does not load; in-flight operations
// for the previous identity are discarded when they complete.
func (s *Store) SetUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user == nil {
		s.user = nil
	} else {
		u := *user
		u.PasswordHash = nil
		s.user = &u
	}
	s.latest++
	s.profile = domain.Profile{}
	s.original = domain.Profile{}
	s.loaded = false
	s.editing = false
	s.dialogOpen = false
	s.preview = ""
}

// SetEditing toggles edit mode.
func (s *Store) SetEditing(editing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = editing
}

// SetAvatarDialogOpen toggles the avatar dialog.
func (s *Store) SetAvatarDialogOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogOpen = open
}

// UpdateField sets one live profile field. Usernames are lowercased and
// stripped of anything but a-z, 0-9 and '-'.
func (s *Store) UpdateField(field domain.ProfileField, value string) error {
	switch field {
	case domain.FieldUsername:
		value = SanitizeUsername(value)
	case domain.FieldBio:
		if len([]rune(value)) > MaxBioLength {
			return domain.NewValidationError(string(field), fmt.Sprintf("must be at most %d characters", MaxBioLength))
		}
	case domain.FieldFirstName, domain.FieldLastName, domain.FieldAvatarURL:
	default:
		return domain.NewValidationError(string(field), "unknown profile field")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch field {
	case domain.FieldFirstName:
		s.profile.FirstName = value
	case domain.FieldLastName:
		s.profile.LastName = value
	case domain.FieldUsername:
		s.profile.Username = value
	case domain.FieldBio:
		s.profile.Bio = value
	case domain.FieldAvatarURL:
		s.profile.AvatarURL = value
	}
	return nil
}

// SanitizeUsername lowercases v and drops characters outside [a-z0-9-].
func SanitizeUsername(v string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(v) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SetAvatarPreview stages an image data URI and applies it to the live
// avatar field.
func (s *Store) SetAvatarPreview(dataURI string) error {
	if err := ValidateAvatarDataURI(dataURI); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = dataURI
	s.profile.AvatarURL = dataURI
	return nil
}

// LoadProfile reads the current user's profile, creating a default one when
// none exists. Without a user it returns immediately.
func (s *Store) LoadProfile(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil
	}
	user := *s.user
	token := s.begin(&s.loading)
	s.mu.Unlock()
	defer s.end(&s.loading)

	record, err := s.profiles.GetProfile(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		created := domain.ProfileRecord{
			UserID:    user.ID,
			Profile:   domain.Profile{Username: user.EmailLocalPart()},
			UpdatedAt: s.now(),
		}
		insertErr := s.profiles.InsertProfile(ctx, created)
		switch {
		case insertErr == nil:
			record, err = &created, nil
		case errors.Is(insertErr, repository.ErrConflict):
			// another session created the row first
			record, err = s.profiles.GetProfile(ctx, user.ID)
		default:
			s.fail(token, user.ID, MsgCreateFailed, "create profile", insertErr)
			return fmt.Errorf("create profile: %w", insertErr)
		}
	}
	if err != nil {
		s.fail(token, user.ID, MsgLoadFailed, "load profile", err)
		return fmt.Errorf("load profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(token) {
		s.logger.Info("discarding stale profile load", "user_id", user.ID, "token", token)
		return nil
	}
	s.profile = record.Profile
	s.original = record.Profile
	s.loaded = true
	return nil
}

// SaveProfile persists the live profile. On success editing ends and the
// saved values become the new original; on failure editing continues.
func (s *Store) SaveProfile(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil
	}
	user := *s.user
	pending := s.profile
	token := s.begin(&s.saving)
	s.mu.Unlock()
	defer s.end(&s.saving)

	err := s.profiles.UpsertProfile(ctx, domain.ProfileRecord{
		UserID:    user.ID,
		Profile:   pending,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.fail(token, user.ID, MsgSaveFailed, "save profile", err)
		return fmt.Errorf("save profile: %w", err)
	}

	s.mu.Lock()
	if !s.current(token) {
		s.mu.Unlock()
		s.logger.Info("discarding stale profile save", "user_id", user.ID, "token", token)
		return nil
	}
	// edits made while the upsert was in flight stay live
	s.original = pending
	s.loaded = true
	s.editing = false
	s.preview = ""
	s.mu.Unlock()

	s.notify(user.ID, Notification{Kind: KindSuccess, Message: MsgSaveSucceeded})
	return nil
}

// CancelEditing restores the last loaded or saved profile.
func (s *Store) CancelEditing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = s.original
	s.preview = ""
	s.editing = false
}

// RemoveAvatar clears the live avatar and the staged preview. Nothing is
// persisted until SaveProfile.
func (s *Store) RemoveAvatar() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = ""
	s.profile.AvatarURL = ""
	s.dialogOpen = false
}

// ConfirmAvatarChange closes the avatar dialog.
func (s *Store) ConfirmAvatarChange() {
	s.mu.Lock()
	s.dialogOpen = false
	var userID string
	if s.user != nil {
		userID = s.user.ID
	}
	s.mu.Unlock()
	s.notify(userID, Notification{Kind: KindSuccess, Message: MsgAvatarUpdated})
}

// UserInitials returns up to two uppercase initials.
func (s *Store) UserInitials() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return initials(s.profile)
}

// DisplayAvatar returns the avatar to render.
func (s *Store) DisplayAvatar() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return displayAvatar(s.preview, s.profile)
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Profile:          s.profile,
		Original:         s.original,
		Loaded:           s.loaded,
		Editing:          s.editing,
		AvatarDialogOpen: s.dialogOpen,
		AvatarPreview:    s.preview,
		DisplayAvatar:    displayAvatar(s.preview, s.profile),
		Initials:         initials(s.profile),
		Loading:          s.loading > 0,
		Saving:           s.saving > 0,
	}
	if s.user != nil {
		snap.UserID = s.user.ID
		snap.Email = s.user.Email
	}
	return snap
}

// Loaded reports whether a profile has been adopted for the current user.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// begin must be called with mu held.
func (s *Store) begin(counter *int) uint64 {
	s.latest++
	*counter++
	return s.latest
}

func (s *Store) end(counter *int) {
	s.mu.Lock()
	*counter--
	s.mu.Unlock()
}

// current must be called with mu held.
func (s *Store) current(token uint64) bool {
	return token == s.latest
}

func (s *Store) fail(token uint64, userID, message, op string, err error) {
	s.mu.Lock()
	stale := !s.current(token)
	s.mu.Unlock()
	if stale {
		s.logger.Info("discarding stale profile failure", "op", op, "user_id", userID, "error", err)
		return
	}
	s.logger.Error(op+" failed", "user_id", userID, "error", err)
	s.notify(userID, Notification{Kind: KindError, Message: message})
}

func (s *Store) notify(userID string, n Notification) {
	if s.notifier == nil || userID == "" {
		return
	}
	s.notifier.Notify(userID, n)
}

func initials(p domain.Profile) string {
	var out []rune
	for _, name := range []string{p.FirstName, p.LastName} {
		for _, r := range strings.TrimSpace(name) {
			out = append(out, unicode.ToUpper(r))
			break
		}
	}
	return string(out)
}

func displayAvatar(preview string, p domain.Profile) string {
	if preview != "" {
		return preview
	}
	if p.AvatarURL != "" {
		return p.AvatarURL
	}
	return PlaceholderAvatar
}
