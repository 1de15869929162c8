package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
	"github.com/blenvi/blenvi/pkg/config"
	"github.com/blenvi/blenvi/pkg/crypto"
	jwtpkg "github.com/blenvi/blenvi/pkg/jwt"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTokenRequired is returned for an empty bearer token.
	ErrTokenRequired = errors.New("token required")
	// ErrTokenRevoked is returned for tokens presented after logout.
	ErrTokenRevoked = errors.New("token revoked")
)

// ResetSender delivers password reset links.
type ResetSender interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogResetSender writes reset links to the log. Used when no mail transport
// is configured.
type LogResetSender struct {
	Logger *slog.Logger
}

// SendPasswordReset logs the link at info level.
func (l LogResetSender) SendPasswordReset(_ context.Context, email, link string) error {
	l.Logger.Info("password reset requested", "email", email, "link", link)
	return nil
}

// Service handles authentication workflows.
type Service struct {
	users   repository.UserRepository
	resets  ResetSender
	revoked *revocationList
	logger  *slog.Logger
	cfg     config.APIConfig
}

// New constructs a Service. resets may be nil, in which case links are logged.
func New(users repository.UserRepository, resets ResetSender, logger *slog.Logger, cfg config.APIConfig) Service {
	if resets == nil {
		resets = LogResetSender{Logger: logger}
	}
	return Service{users: users, resets: resets, revoked: newRevocationList(), logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// SignupInput carries the sign-up form.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Signup registers a new user.
func (s Service) Signup(ctx context.Context, input SignupInput) (*domain.User, TokenPair, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := ValidateSignup(input); err != nil {
		return nil, TokenPair{}, err
	}
	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, TokenPair{}, ErrEmailTaken
		}
		return nil, TokenPair{}, fmt.Errorf("create user: %w", err)
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates an access token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, ErrTokenRequired
	}
	claims, err := jwtpkg.ParseFor(trimmed, s.cfg.JWTSecret, jwtpkg.PurposeAccess)
	if err != nil {
		return nil, nil, err
	}
	if s.revoked.contains(claims.ID) {
		return nil, nil, ErrTokenRevoked
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := jwtpkg.ParseFor(strings.TrimSpace(refreshToken), s.cfg.JWTSecret, jwtpkg.PurposeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if s.revoked.contains(claims.ID) {
		return TokenPair{}, ErrTokenRevoked
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issueTokens(user)
}

// Logout revokes the given tokens until they expire. Tokens that no longer
// parse are ignored.
func (s Service) Logout(tokens ...string) {
	for _, token := range tokens {
		claims, err := jwtpkg.Parse(strings.TrimSpace(token), s.cfg.JWTSecret)
		if err != nil || claims.ExpiresAt == nil {
			continue
		}
		s.revoked.add(claims.ID, claims.ExpiresAt.Time)
		s.logger.Info("token revoked", "user_id", claims.UserID, "purpose", claims.Purpose)
	}
}

// RequestPasswordReset sends a reset link when the email is registered.
// Unknown emails succeed silently.
func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset for unknown email")
			return nil
		}
		return err
	}
	token, err := jwtpkg.GenerateToken(user.ID, user.Email, jwtpkg.PurposePasswordReset, s.cfg.JWTSecret, s.cfg.PasswordResetTTL)
	if err != nil {
		return err
	}
	link, err := resetLink(s.cfg.PasswordResetURL, token)
	if err != nil {
		return err
	}
	return s.resets.SendPasswordReset(ctx, user.Email, link)
}

// UpdatePassword sets a new password using a reset token. The token is
// single use.
func (s Service) UpdatePassword(ctx context.Context, token, password string) error {
	claims, err := jwtpkg.ParseFor(strings.TrimSpace(token), s.cfg.JWTSecret, jwtpkg.PurposePasswordReset)
	if err != nil {
		return err
	}
	if s.revoked.contains(claims.ID) {
		return ErrTokenRevoked
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if err := ValidatePassword(password, user.FirstName, user.LastName, user.Email); err != nil {
		return err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if claims.ExpiresAt != nil {
		s.revoked.add(claims.ID, claims.ExpiresAt.Time)
	}
	s.logger.Info("password updated", "user_id", user.ID)
	return nil
}

func (s Service) issueTokens(user *domain.User) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(user.ID, user.Email, jwtpkg.PurposeAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(user.ID, user.Email, jwtpkg.PurposeRefresh, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
