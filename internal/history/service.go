package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"schoolchat/internal/models"
	"schoolchat/internal/redis"
)

const (
	cacheTTL = 30 * time.Minute

	// DefaultRecentLimit covers the last three exchanges fed into generation
	// context.
	DefaultRecentLimit = 3
)

// Service persists conversation exchanges and serves the recent history used
// as generation context. A redis cache in front of the table is optional.
type Service struct {
	db    *sql.DB
	cache *redis.Client
}

// NewService builds a history service. cache may be nil.
func NewService(db *sql.DB, cache *redis.Client) *Service {
	return &Service{db: db, cache: cache}
}

// Record stores one exchange, assigning the next sequential message id for
// the session ("conv1", "conv2", ...).
func (s *Service) Record(ctx context.Context, ex models.Exchange) (*models.Exchange, error) {
	if ex.SessionID == "" {
		return nil, errors.New("session_id is required")
	}
	now := time.Now().UTC()
	messageID, err := s.nextMessageID(ctx, ex.SessionID)
	if err != nil {
		// Same fallback the exchange log has always had: a timestamp id keeps
		// the write alive when the count query fails.
		messageID = fmt.Sprintf("msg%d", now.Unix())
	}
	ex.MessageID = messageID
	ex.CreatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, message_id, user_message, assistant_response, query_type, response_time_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ex.SessionID, ex.MessageID, ex.UserMessage, ex.AssistantText, ex.QueryType, ex.ResponseTime, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert exchange: %w", err)
	}
	if s.cache.Enabled() {
		if err := s.cache.Del(ctx, cacheKey(ex.SessionID)); err != nil {
			log.Printf("history cache invalidate failed: %v", err)
		}
	}
	return &ex, nil
}

// Recent returns the last `limit` exchanges for the session in chronological
// order.
func (s *Service) Recent(ctx context.Context, sessionID string, limit int) ([]models.Exchange, error) {
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	if s.cache.Enabled() {
		var cached []models.Exchange
		if err := s.cache.GetJSON(ctx, cacheKey(sessionID), &cached); err == nil {
			if len(cached) > limit {
				cached = cached[len(cached)-limit:]
			}
			return cached, nil
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("history cache read failed: %v", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, message_id, user_message, assistant_response, query_type, response_time_seconds, created_at
		 FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var newestFirst []models.Exchange
	for rows.Next() {
		var ex models.Exchange
		if err := rows.Scan(&ex.SessionID, &ex.MessageID, &ex.UserMessage, &ex.AssistantText, &ex.QueryType, &ex.ResponseTime, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		newestFirst = append(newestFirst, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exchanges := make([]models.Exchange, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		exchanges = append(exchanges, newestFirst[i])
	}

	if s.cache.Enabled() && len(exchanges) > 0 {
		if err := s.cache.SetJSON(ctx, cacheKey(sessionID), exchanges, cacheTTL); err != nil {
			log.Printf("history cache write failed: %v", err)
		}
	}
	return exchanges, nil
}

func (s *Service) nextMessageID(ctx context.Context, sessionID string) (string, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count exchanges: %w", err)
	}
	return fmt.Sprintf("conv%d", count+1), nil
}

func cacheKey(sessionID string) string {
	return "history:" + sessionID
}
