package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// Registry stores the one active session of each browser context in Redis.
type Registry struct {
	client *redis.Client
}

func NewRegistry(client *redis.Client) *Registry {
	return &Registry{client: client}
}

func sessionKey(contextID string) string {
	return fmt.Sprintf("tubeshelf:session:%s", contextID)
}

// Save replaces whatever session the context held.
func (r *Registry) Save(ctx context.Context, s models.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.client.Set(ctx, sessionKey(s.ContextID), data, ttl).Err()
}

// Load returns nil without error when the context has no session.
func (r *Registry) Load(ctx context.Context, contextID string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(contextID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *Registry) Delete(ctx context.Context, contextID string) error {
	return r.client.Del(ctx, sessionKey(contextID)).Err()
}
