package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	pkgredis "github.com/prohmpiriya/ticket-broker/pkg/redis"
)

// SessionRepository stores purchase sessions
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisSessionRepository keeps sessions as JSON with a sliding TTL
type RedisSessionRepository struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisSessionRepository creates a new RedisSessionRepository
func NewRedisSessionRepository(client *pkgredis.Client, ttl time.Duration) *RedisSessionRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "purchase-session:" + id
}

// Get loads a session and slides its TTL
func (r *RedisSessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := r.client.Client().GetEx(ctx, sessionKey(sessionID), r.ttl).Bytes()
	if errors.Is(err, pkgredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &s, nil
}

// Save writes a session with a fresh TTL
func (r *RedisSessionRepository) Save(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Client().Set(ctx, sessionKey(session.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session
func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Client().Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

var _ SessionRepository = (*RedisSessionRepository)(nil)
