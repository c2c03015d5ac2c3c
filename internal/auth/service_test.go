package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"schoolchat/internal/config"
	"schoolchat/internal/storage"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "test.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(db, ttl)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "pat", "s3cret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == 0 || user.Username != "pat" {
		t.Fatalf("unexpected user: %+v", user)
	}

	logged, err := svc.Login(ctx, "pat", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("login resolved a different user: %d != %d", logged.ID, user.ID)
	}

	if _, err := svc.Login(ctx, "pat", "wrong"); err == nil {
		t.Fatalf("wrong password must not log in")
	}
	if _, err := svc.Login(ctx, "nobody", "s3cret"); err == nil {
		t.Fatalf("unknown user must not log in")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "pw"); err == nil {
		t.Fatalf("empty username must be rejected")
	}
	if _, err := svc.Register(ctx, "pat", "   "); err == nil {
		t.Fatalf("blank password must be rejected")
	}

	if _, err := svc.Register(ctx, "pat", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "pat", "pw2"); err == nil {
		t.Fatalf("duplicate username must be rejected")
	}
}

func TestTokenLifecycle(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, "pat", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, expiresAt, err := svc.IssueToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("bad token issue: %q, %v", token, expiresAt)
	}

	userID, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("token resolved to user %d, want %d", userID, user.ID)
	}

	if _, err := svc.ValidateToken(ctx, "not-a-token"); err == nil {
		t.Fatalf("unknown token must not validate")
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("revoked token must not validate")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newTestService(t, time.Hour)
	svc.tokenTTL = -time.Minute
	ctx := context.Background()

	user, err := svc.Register(ctx, "pat", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, err := svc.IssueToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expired token must not validate")
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Bearer ", ""},
		{"Basic abc123", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractBearer(tt.header); got != tt.want {
			t.Errorf("extractBearer(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
