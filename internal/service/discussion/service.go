package discussion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"log/slog"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
	"github.com/blenvi/blenvi/internal/ws"
)

const (
	defaultLimit  = 50
	maxLimit      = 200
	maxBodyLength = 4000
	maxEmojiBytes = 32
)

// Event types published on the project topic.
const (
	EventPosted  = "discussion.posted"
	EventReacted = "discussion.reacted"
)

var (
	errEmptyBody    = errors.New("message body is required")
	errBodyTooLong  = fmt.Errorf("message body must be at most %d characters", maxBodyLength)
	errInvalidEmoji = errors.New("reaction must be a single emoji")

	// ErrWrongProject is returned when a message id belongs to another project.
	ErrWrongProject = errors.New("message belongs to a different project")
)

// Publisher broadcasts events to hub topics.
type Publisher interface {
	Publish(topic, eventType string, data any) error
}

// Service handles discussion persistence and streaming.
type Service struct {
	repo     repository.DiscussionRepository
	events   Publisher
	markdown goldmark.Markdown
	logger   *slog.Logger
}

// New constructs a discussion service. events may be nil.
func New(repo repository.DiscussionRepository, events Publisher, logger *slog.Logger) Service {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return Service{repo: repo, events: events, markdown: md, logger: logger}
}

// PostInput carries a new message.
type PostInput struct {
	TeamID     string
	ProjectID  string
	AuthorID   string
	AuthorName string
	Body       string
}

// Post stores and broadcasts a top-level message.
func (s Service) Post(ctx context.Context, in PostInput) (*domain.DiscussionMessage, error) {
	return s.append(ctx, in, nil)
}

// Reply answers an existing message. Replies to replies attach to the
// thread root.
func (s Service) Reply(ctx context.Context, parentID string, in PostInput) (*domain.DiscussionMessage, error) {
	parent, err := s.owned(ctx, in.TeamID, in.ProjectID, parentID)
	if err != nil {
		return nil, err
	}
	root := parent.ID
	if parent.ParentID != nil {
		root = *parent.ParentID
	}
	return s.append(ctx, in, &root)
}

// React adds one emoji reaction and returns the updated counts.
func (s Service) React(ctx context.Context, teamID, projectID, messageID, emoji string) (map[string]int, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes || strings.ContainsAny(emoji, " \t\n") {
		return nil, errInvalidEmoji
	}
	if _, err := s.owned(ctx, teamID, projectID, messageID); err != nil {
		return nil, err
	}
	counts, err := s.repo.AddReaction(ctx, messageID, emoji)
	if err != nil {
		return nil, err
	}
	s.publish(teamID, projectID, EventReacted, map[string]any{"id": messageID, "reactions": counts})
	return counts, nil
}

// List returns the newest messages of a project in chronological order.
func (s Service) List(ctx context.Context, teamID, projectID string, limit int) ([]domain.DiscussionMessage, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.repo.ListMessages(ctx, teamID, projectID, limit)
}

// Render converts a markdown body into HTML. Raw HTML and unsafe link
// schemes are dropped.
func (s Service) Render(body string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s Service) append(ctx context.Context, in PostInput, parentID *string) (*domain.DiscussionMessage, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, errEmptyBody
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return nil, errBodyTooLong
	}
	html, err := s.Render(body)
	if err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}
	msg := &domain.DiscussionMessage{
		ID:         uuid.NewString(),
		TeamID:     in.TeamID,
		ProjectID:  in.ProjectID,
		ParentID:   parentID,
		AuthorID:   in.AuthorID,
		AuthorName: in.AuthorName,
		Body:       body,
		HTML:       html,
		Reactions:  map[string]int{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.publish(in.TeamID, in.ProjectID, EventPosted, msg)
	return msg, nil
}

func (s Service) owned(ctx context.Context, teamID, projectID, messageID string) (*domain.DiscussionMessage, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.TeamID != teamID || msg.ProjectID != projectID {
		return nil, ErrWrongProject
	}
	return msg, nil
}

func (s Service) publish(teamID, projectID, eventType string, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ws.ProjectTopic(teamID, projectID), eventType, data); err != nil {
		s.logger.Warn("failed to publish discussion event", "error", err)
	}
}

// IsValidation reports whether err is an input error.
func IsValidation(err error) bool {
	return errors.Is(err, errEmptyBody) || errors.Is(err, errBodyTooLong) || errors.Is(err, errInvalidEmoji)
}
