// Package cache keeps a short-lived copy of each persona's live steering
// state in Redis, so sidecar consumers read the current control vector
// without touching the primary store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/persona-core/internal/emotion"
	"github.com/danielpatrickdp/persona-core/internal/vector"
)

// ErrMiss is returned when no entry exists for the persona or it expired.
var ErrMiss = errors.New("cache miss")

// #region snapshot

// Snapshot is the cached slice of live state: enough to steer a consumer,
// small enough for a hot path.
type Snapshot struct {
	PersonaID string          `json:"persona_id"`
	Control   []byte          `json:"control"`
	Dominant  emotion.Emotion `json:"dominant"`
	Intensity float64         `json:"intensity"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// #endregion snapshot

// #region cache

// Cache is a bounded-TTL Redis cache. Entries expire on their own; the
// source of truth stays in SQLite.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Config configures key namespacing and entry lifetime.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// DefaultConfig returns the default namespacing and lifetime.
func DefaultConfig() Config {
	return Config{
		Prefix: "persona",
		TTL:    10 * time.Minute,
	}
}

// New creates a cache over an existing Redis client.
func New(client *redis.Client, cfg Config) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = "persona"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &Cache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (c *Cache) key(personaID string) string {
	return fmt.Sprintf("%s:%s:control", c.prefix, personaID)
}

// #endregion cache

// #region put-get

// Put stores the persona's current steering state with the configured TTL.
func (c *Cache) Put(ctx context.Context, personaID string, control vector.Vec, dominant emotion.Emotion, intensity float64, version int64, at time.Time) error {
	snap := Snapshot{
		PersonaID: personaID,
		Control:   vector.Encode(control),
		Dominant:  dominant,
		Intensity: intensity,
		Version:   version,
		UpdatedAt: at,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(personaID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Get reads the persona's cached steering state.
func (c *Cache) Get(ctx context.Context, personaID string) (Snapshot, vector.Vec, error) {
	payload, err := c.client.Get(ctx, c.key(personaID)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, vector.Vec{}, ErrMiss
	}
	if err != nil {
		return Snapshot{}, vector.Vec{}, fmt.Errorf("cache get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Snapshot{}, vector.Vec{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	control, err := vector.Decode(snap.Control)
	if err != nil {
		return Snapshot{}, vector.Vec{}, fmt.Errorf("cached control vector: %w", err)
	}
	return snap, control, nil
}

// Invalidate drops the persona's entry, e.g. after a stage regression.
func (c *Cache) Invalidate(ctx context.Context, personaID string) error {
	if err := c.client.Del(ctx, c.key(personaID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// #endregion put-get
