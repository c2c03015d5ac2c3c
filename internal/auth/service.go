package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"schoolchat/internal/models"
)

// Service manages accounts and the bearer tokens that authenticate chat API
// requests. It is the development stand-in for the external identity
// collaborator the client core treats as opaque.
type Service struct {
	db         *sql.DB
	tokenTTL   time.Duration
	headerName string
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(db *sql.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:         db,
		tokenTTL:   ttl,
		headerName: "Authorization",
	}
}

// Register creates a user with the supplied credentials.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	hash := hashPassword(password)
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, hash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{ID: id, Username: username, PasswordHash: hash, CreatedAt: now}, nil
}

// Login verifies the credentials and returns the matching user.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("invalid username or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(user.PasswordHash), []byte(hashPassword(password))) != 1 {
		return nil, errors.New("invalid username or password")
	}
	return &user, nil
}

// Username resolves a user id to its username.
func (s *Service) Username(ctx context.Context, userID int64) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ?`, userID,
	).Scan(&username)
	if err != nil {
		return "", fmt.Errorf("lookup username: %w", err)
	}
	return username, nil
}

// IssueToken mints a new random bearer token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", time.Time{}, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		)
		if err == nil {
			return token, expiresAt, nil
		}
	}
	return "", time.Time{}, errors.New("could not issue token")
}

// ValidateToken verifies the token exists and has not expired, returning the
// user id.
func (s *Service) ValidateToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, errors.New("token required")
	}
	var userID int64
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, token,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("invalid token")
		}
		return 0, fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token)
		return 0, errors.New("token expired")
	}
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
