package repository

import (
	"context"

	"github.com/blenvi/blenvi/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID string, hash []byte) error
}

// ProfileRepository reads and writes the profiles table keyed by user id.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.ProfileRecord, error)
	InsertProfile(ctx context.Context, record domain.ProfileRecord) error
	UpsertProfile(ctx context.Context, record domain.ProfileRecord) error
}

// IntegrationConfigRepository stores per-project integration settings.
type IntegrationConfigRepository interface {
	UpsertIntegrationConfig(ctx context.Context, cfg *domain.IntegrationConfig) error
	GetIntegrationConfig(ctx context.Context, teamID, projectID, slug string) (*domain.IntegrationConfig, error)
}

// DiscussionRepository handles team discussion persistence.
type DiscussionRepository interface {
	AppendMessage(ctx context.Context, msg *domain.DiscussionMessage) error
	GetMessage(ctx context.Context, id string) (*domain.DiscussionMessage, error)
	ListMessages(ctx context.Context, teamID, projectID string, limit int) ([]domain.DiscussionMessage, error)
	AddReaction(ctx context.Context, messageID, emoji string) (map[string]int, error)
}
