package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/davomat-bot/internal/models"
)

// RedisSessionStore keeps operator sessions in Redis so interactive flows
// survive process restarts. Sessions expire after the configured TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore constructs the store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(operatorID int64) string {
	return fmt.Sprintf("session:%d", operatorID)
}

// Get returns the operator's session, or a fresh idle one when absent.
func (s *RedisSessionStore) Get(ctx context.Context, operatorID int64) (models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(operatorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewSession(), nil
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("get session %d: %w", operatorID, err)
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return models.Session{}, fmt.Errorf("decode session %d: %w", operatorID, err)
	}
	return sess, nil
}

// Put stores the operator's session with the configured TTL.
func (s *RedisSessionStore) Put(ctx context.Context, operatorID int64, sess models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", operatorID, err)
	}
	if err := s.client.Set(ctx, sessionKey(operatorID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("put session %d: %w", operatorID, err)
	}
	return nil
}

// Delete removes the operator's session.
func (s *RedisSessionStore) Delete(ctx context.Context, operatorID int64) error {
	if err := s.client.Del(ctx, sessionKey(operatorID)).Err(); err != nil {
		return fmt.Errorf("delete session %d: %w", operatorID, err)
	}
	return nil
}
