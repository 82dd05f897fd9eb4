package settlement

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"unykorn/pkg/domain"
	"unykorn/pkg/requestcontext"
)

// ReferenceStore remembers which settlement references have been applied.
type ReferenceStore interface {
	// Claim marks key as used. It returns false if key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed instruction can be retried.
	Release(ctx context.Context, key string) error
}

// ReferenceKey is the hex keccak256 digest of reference. Mint and redeem
// instructions share one namespace.
func ReferenceKey(reference string) string {
	sum := domain.Keccak256([]byte(reference))
	return hex.EncodeToString(sum[:])
}

// InMemoryReferenceStore keeps claims for the life of the process.
type InMemoryReferenceStore struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewInMemoryReferenceStore() *InMemoryReferenceStore {
	return &InMemoryReferenceStore{claimed: make(map[string]struct{})}
}

func (s *InMemoryReferenceStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[key]; ok {
		return false, nil
	}
	s.claimed[key] = struct{}{}
	return true, nil
}

func (s *InMemoryReferenceStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, key)
	return nil
}

// RedisReferenceStore claims keys with SET NX so several ledger processes
// reading the same settlement topic apply each reference once.
type RedisReferenceStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisReferenceStore stores claims under prefix. A zero ttl keeps claims
// forever.
func NewRedisReferenceStore(client redis.Cmdable, prefix string, ttl time.Duration) *RedisReferenceStore {
	return &RedisReferenceStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisReferenceStore) Claim(ctx context.Context, key string) (bool, error) {
	claimedAt := requestcontext.Now(ctx).Format(time.RFC3339Nano)
	ok, err := s.client.SetNX(ctx, s.prefix+key, claimedAt, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim settlement reference: %w", err)
	}
	return ok, nil
}

func (s *RedisReferenceStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release settlement reference: %w", err)
	}
	return nil
}
