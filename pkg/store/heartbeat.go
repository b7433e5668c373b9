package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Instance is a replica registered in the heartbeat hash.
type Instance struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"lastSeen"`
}

// Heartbeat registers replicas in a shared hash keyed by instance id.
type Heartbeat struct {
	client Client
	key    string
	ttl    time.Duration
}

// NewHeartbeat returns a heartbeat registry. The whole hash expires after
// ttl without any beat.
func NewHeartbeat(client Client, keys Keys, ttl time.Duration) *Heartbeat {
	return &Heartbeat{client: client, key: keys.Heartbeat(), ttl: ttl}
}

// Beat records now as the last-seen time of id.
func (h *Heartbeat) Beat(ctx context.Context, id string, now time.Time) error {
	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, h.key, id, now.UnixMilli())
		pipe.Expire(ctx, h.key, h.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("heartbeat for %s: %w", id, err)
	}
	return nil
}

// Remove unregisters id.
func (h *Heartbeat) Remove(ctx context.Context, id string) error {
	if err := h.client.HDel(ctx, h.key, id).Err(); err != nil {
		return fmt.Errorf("unregister %s: %w", id, err)
	}
	return nil
}

// Live returns the replicas seen within ttl of now, ordered by id.
func (h *Heartbeat) Live(ctx context.Context, now time.Time) ([]Instance, error) {
	all, err := h.client.HGetAll(ctx, h.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	var out []Instance
	for id, v := range all {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		seen := time.UnixMilli(ms)
		if now.Sub(seen) > h.ttl {
			continue
		}
		out = append(out, Instance{ID: id, LastSeen: seen})
	}
	slices.SortFunc(out, func(a, b Instance) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
