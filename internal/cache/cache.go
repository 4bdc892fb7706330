// Package cache keeps per-user video lists in Redis. Lists are filled by
// reads, dropped by local writes, and patched in place by database change
// notifications.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/videos"
	"github.com/redis/go-redis/v9"
)

const applyRetries = 3

// Connect opens a client from a redis:// URL and checks it answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type VideoLists struct {
	client *redis.Client
	ttl    time.Duration
}

func NewVideoLists(client *redis.Client, ttl time.Duration) *VideoLists {
	return &VideoLists{client: client, ttl: ttl}
}

func listKey(userID string) string {
	return fmt.Sprintf("tubeshelf:videos:%s", userID)
}

// Get reports a miss as ok=false with a nil error.
func (c *VideoLists) Get(ctx context.Context, userID string) ([]models.Video, bool, error) {
	data, err := c.client.Get(ctx, listKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get video list: %w", err)
	}
	var list []models.Video
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal video list: %w", err)
	}
	return list, true, nil
}

func (c *VideoLists) Set(ctx context.Context, userID string, list []models.Video) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal video list: %w", err)
	}
	return c.client.Set(ctx, listKey(userID), data, c.ttl).Err()
}

func (c *VideoLists) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, listKey(userID)).Err()
}

// Apply merges one change into the cached list. Nothing is cached for a user
// whose list is absent; the next read loads it from the database.
func (c *VideoLists) Apply(ctx context.Context, userID string, ch models.VideoChange) error {
	key := listKey(userID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var list []models.Video
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		merged, err := json.Marshal(videos.Merge(list, ch))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, merged, c.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < applyRetries; i++ {
		err := c.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to apply %s to video list: %w", ch.Type, err)
		}
		return nil
	}
	// Contended; drop the entry so the next read reloads it.
	return c.Invalidate(ctx, userID)
}
