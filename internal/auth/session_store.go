package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tempora-app/tempora/internal/shared"
)

// SessionStore keeps live sessions in Redis. Redis is the source of truth
// for liveness; the Postgres mirror written by the Repository is for the
// audit trail only.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Put registers a session for its remaining lifetime.
func (s *SessionStore) Put(ctx context.Context, sess Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.client.Set(ctx, s.key(sess.ID), payload, ttl).Err()
}

// Get fetches a live session. A missing session surfaces as
// ErrUnauthenticated: the token that referenced it has been revoked.
func (s *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, shared.ErrUnauthenticated
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Delete revokes a session immediately. Every token bound to it stops
// being honored on the next request.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStore) key(id string) string {
	return "authsession:" + id
}
