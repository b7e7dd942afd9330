package storage

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence records which staff sessions are watching a location. Each
// heartbeat refreshes a key that expires after TTL, so crashed sessions age out.
type RedisPresence struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{Client: client, TTL: ttl}
}

func (p *RedisPresence) Key(locationID, sessionID string) string {
	return "presence:" + locationID + ":" + sessionID
}

func (p *RedisPresence) Announce(ctx context.Context, locationID, sessionID, staffID string) error {
	return p.Client.Set(ctx, p.Key(locationID, sessionID), staffID, p.TTL).Err()
}

func (p *RedisPresence) Leave(ctx context.Context, locationID, sessionID string) error {
	return p.Client.Del(ctx, p.Key(locationID, sessionID)).Err()
}

// Online lists the distinct staff ids with a live session at locationID.
func (p *RedisPresence) Online(ctx context.Context, locationID string) ([]string, error) {
	var keys []string
	iter := p.Client.Scan(ctx, 0, p.Key(locationID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []string{}, nil
	}

	values, err := p.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(values))
	staff := make([]string, 0, len(values))
	for _, v := range values {
		id, ok := v.(string)
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		staff = append(staff, id)
	}
	sort.Strings(staff)
	return staff, nil
}
