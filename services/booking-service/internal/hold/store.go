// Package hold pre-reserves slots in Redis while a guest finishes checkout.
// A hold is advisory UX state with a short TTL; the booking transaction
// stays the authority on whether a slot is actually free.
package hold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a hold survives without being refreshed.
const DefaultTTL = 5 * time.Minute

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// TTL reports how long a freshly acquired or refreshed hold lives.
func (s *Store) TTL() time.Duration { return s.ttl }

// Acquire takes the hold for holderRef and reports whether it was granted.
// Re-acquiring an own hold refreshes its TTL.
func (s *Store) Acquire(ctx context.Context, hostID string, start, end time.Time, holderRef string) (bool, error) {
	key := holdKey(hostID, start, end)
	ok, err := s.client.SetNX(ctx, key, holderRef, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire hold: %w", err)
	}
	if ok {
		return true, nil
	}

	current, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; one retry.
		ok, err := s.client.SetNX(ctx, key, holderRef, s.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("acquire hold: %w", err)
		}
		return ok, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire hold: %w", err)
	}
	if current == holderRef {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return false, fmt.Errorf("refresh hold: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Release drops the hold if holderRef still owns it. Releasing a foreign or
// missing hold is a no-op; holds expire on their own anyway.
func (s *Store) Release(ctx context.Context, hostID string, start, end time.Time, holderRef string) error {
	key := holdKey(hostID, start, end)
	current, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	if current != holderRef {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

// HeldBy returns the current holder of the slot, empty when unheld.
func (s *Store) HeldBy(ctx context.Context, hostID string, start, end time.Time) (string, error) {
	v, err := s.client.Get(ctx, holdKey(hostID, start, end)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read hold: %w", err)
	}
	return v, nil
}

func holdKey(hostID string, start, end time.Time) string {
	return fmt.Sprintf("hold:%s:%d:%d", hostID, start.Unix(), end.Unix())
}
