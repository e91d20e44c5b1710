package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/campusnav/internal/geo"
)

// Key namespaces. Camera state and the pending destination are stored
// separately so clearing one never touches the other.
const (
	cameraPrefix      = "camera:"
	destinationPrefix = "destination:"
)

// Camera is the last map camera state of a session.
type Camera struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Zoom      float64 `json:"zoom"`
	NightMode bool    `json:"night_mode"`
}

// Store wraps a Redis client and provides typed get/set/delete for the
// durable per-session state. A zero TTL keeps entries until deleted.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. ttl of 0 means no expiry.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(prefix, session string) string {
	return prefix + strings.ToLower(strings.TrimSpace(session))
}

// GetCamera retrieves the camera state for session.
// Returns nil, nil on a miss.
func (s *Store) GetCamera(ctx context.Context, session string) (*Camera, error) {
	var cam Camera
	found, err := s.get(ctx, key(cameraPrefix, session), &cam)
	if err != nil || !found {
		return nil, err
	}
	return &cam, nil
}

// SetCamera stores the camera state for session.
func (s *Store) SetCamera(ctx context.Context, session string, cam Camera) error {
	return s.set(ctx, key(cameraPrefix, session), cam)
}

// GetDestination retrieves the pending destination for session.
// Returns nil, nil on a miss.
func (s *Store) GetDestination(ctx context.Context, session string) (*geo.Coordinate, error) {
	var dest geo.Coordinate
	found, err := s.get(ctx, key(destinationPrefix, session), &dest)
	if err != nil || !found {
		return nil, err
	}
	return &dest, nil
}

// SetDestination stores the pending destination for session.
func (s *Store) SetDestination(ctx context.Context, session string, dest geo.Coordinate) error {
	return s.set(ctx, key(destinationPrefix, session), dest)
}

// DeleteDestination removes the pending destination for session.
func (s *Store) DeleteDestination(ctx context.Context, session string) error {
	k := key(destinationPrefix, session)
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", k, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, k string, dst any) (bool, error) {
	val, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", k, err)
	}

	if err := json.Unmarshal([]byte(val), dst); err != nil {
		return false, fmt.Errorf("unmarshaling cached %s: %w", k, err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, k string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", k, err)
	}

	if err := s.client.Set(ctx, k, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", k, err)
	}
	return nil
}
