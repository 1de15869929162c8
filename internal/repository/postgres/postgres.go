package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository              = (*Repository)(nil)
	_ repository.ProfileRepository           = (*Repository)(nil)
	_ repository.IntegrationConfigRepository = (*Repository)(nil)
	_ repository.DiscussionRepository        = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.CreatedAt)
	return translate(err)
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, userID string, hash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, userID, hash)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetProfile loads the profile row for a user. Nullable columns collapse to empty strings.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.ProfileRecord, error) {
	const query = `SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(username, ''),
			COALESCE(bio, ''), COALESCE(avatar_url, ''), updated_at
		FROM profiles WHERE id = $1`
	var rec domain.ProfileRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.Profile.FirstName,
		&rec.Profile.LastName,
		&rec.Profile.Username,
		&rec.Profile.Bio,
		&rec.Profile.AvatarURL,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// InsertProfile creates a new profile row; an existing row is a conflict.
func (r *Repository) InsertProfile(ctx context.Context, rec domain.ProfileRecord) error {
	const query = `INSERT INTO profiles (id, first_name, last_name, username, bio, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.Profile.FirstName,
		rec.Profile.LastName,
		nilIfEmpty(rec.Profile.Username),
		rec.Profile.Bio,
		rec.Profile.AvatarURL,
		rec.UpdatedAt,
	)
	return translate(err)
}

// UpsertProfile inserts or updates every profile field keyed by user id.
func (r *Repository) UpsertProfile(ctx context.Context, rec domain.ProfileRecord) error {
	const query = `INSERT INTO profiles (id, first_name, last_name, username, bio, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			username = EXCLUDED.username,
			bio = EXCLUDED.bio,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at`
	_, err := r.pool.Exec(ctx, query,
		rec.UserID,
		rec.Profile.FirstName,
		rec.Profile.LastName,
		nilIfEmpty(rec.Profile.Username),
		rec.Profile.Bio,
		rec.Profile.AvatarURL,
		rec.UpdatedAt,
	)
	return translate(err)
}

// UpsertIntegrationConfig stores the configuration for a project integration.
func (r *Repository) UpsertIntegrationConfig(ctx context.Context, cfg *domain.IntegrationConfig) error {
	if cfg == nil {
		return fmt.Errorf("integration config required")
	}
	const query = `INSERT INTO integration_configs (team_id, project_id, slug, config_values, secret_values, enabled, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (team_id, project_id, slug) DO UPDATE SET
			config_values = EXCLUDED.config_values,
			secret_values = EXCLUDED.secret_values,
			enabled = EXCLUDED.enabled,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`
	values := cfg.Values
	if values == nil {
		values = map[string]string{}
	}
	secrets := cfg.Secrets
	if secrets == nil {
		secrets = map[string][]byte{}
	}
	_, err := r.pool.Exec(ctx, query, cfg.TeamID, cfg.ProjectID, cfg.Slug, values, secrets, cfg.Enabled, nilIfEmpty(cfg.UpdatedBy), cfg.UpdatedAt)
	return translate(err)
}

// GetIntegrationConfig loads a stored integration configuration.
func (r *Repository) GetIntegrationConfig(ctx context.Context, teamID, projectID, slug string) (*domain.IntegrationConfig, error) {
	const query = `SELECT team_id, project_id, slug, config_values, secret_values, enabled, COALESCE(updated_by::text, ''), updated_at
		FROM integration_configs WHERE team_id = $1 AND project_id = $2 AND slug = $3`
	var cfg domain.IntegrationConfig
	err := r.pool.QueryRow(ctx, query, teamID, projectID, slug).Scan(
		&cfg.TeamID,
		&cfg.ProjectID,
		&cfg.Slug,
		&cfg.Values,
		&cfg.Secrets,
		&cfg.Enabled,
		&cfg.UpdatedBy,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// AppendMessage inserts a discussion message.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.DiscussionMessage) error {
	if msg == nil {
		return fmt.Errorf("discussion message required")
	}
	const query = `INSERT INTO discussion_messages (id, team_id, project_id, parent_id, author_id, author_name, body, html, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	reactions := msg.Reactions
	if reactions == nil {
		reactions = map[string]int{}
	}
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.TeamID,
		msg.ProjectID,
		stringPtrToNil(msg.ParentID),
		msg.AuthorID,
		msg.AuthorName,
		msg.Body,
		msg.HTML,
		reactions,
		msg.CreatedAt,
	)
	return translate(err)
}

// GetMessage loads a single discussion message.
func (r *Repository) GetMessage(ctx context.Context, id string) (*domain.DiscussionMessage, error) {
	const query = `SELECT id, team_id, project_id, parent_id, author_id, author_name, body, html, reactions, created_at
		FROM discussion_messages WHERE id = $1`
	msg, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the newest messages of a project discussion, oldest first.
func (r *Repository) ListMessages(ctx context.Context, teamID, projectID string, limit int) ([]domain.DiscussionMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, team_id, project_id, parent_id, author_id, author_name, body, html, reactions, created_at
		FROM (
			SELECT * FROM discussion_messages
			WHERE team_id = $1 AND project_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, teamID, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.DiscussionMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// AddReaction increments the emoji counter and returns the updated reactions.
func (r *Repository) AddReaction(ctx context.Context, messageID, emoji string) (map[string]int, error) {
	const query = `UPDATE discussion_messages
		SET reactions = jsonb_set(reactions, ARRAY[$2::text], to_jsonb(COALESCE((reactions->>$2)::int, 0) + 1))
		WHERE id = $1
		RETURNING reactions`
	var reactions map[string]int
	if err := r.pool.QueryRow(ctx, query, messageID, emoji).Scan(&reactions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return reactions, nil
}

func scanMessage(row pgx.Row) (*domain.DiscussionMessage, error) {
	var (
		msg      domain.DiscussionMessage
		parentID *string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.TeamID,
		&msg.ProjectID,
		&parentID,
		&msg.AuthorID,
		&msg.AuthorName,
		&msg.Body,
		&msg.HTML,
		&msg.Reactions,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	msg.ParentID = parentID
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

// translate maps constraint violations onto repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func stringPtrToNil(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// Ping verifies the pool can reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.pool.Ping(ctx)
}
