package bandit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/resilientkernel/kernel/platform"
)

// StorageProvider abstracts the backend a Model's snapshots persist
// to. Implementations can be in-memory, Redis, or anything else; the
// Bandit Selector depends only on this interface, never on a concrete
// backend.
type StorageProvider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MemoryStorage is an in-process StorageProvider, the default when no
// distributed backend is configured.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStorage builds an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key], nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStorage) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *MemoryStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// RedisStorage is a StorageProvider backed by Redis, for bandit model
// snapshots that need to survive process restarts and be shared across
// replicas of the same kernel deployment.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage builds a RedisStorage wrapping client. keyPrefix is
// prepended to every key, matching the namespacing convention the
// execution debug store uses.
func NewRedisStorage(client *redis.Client, keyPrefix string) *RedisStorage {
	if keyPrefix == "" {
		keyPrefix = "resilientkernel:bandit:"
	}
	return &RedisStorage{client: client, prefix: keyPrefix}
}

func (s *RedisStorage) key(k string) string { return s.prefix + k }

func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", platform.NewKernelError("bandit.RedisStorage.Get", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return v, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return platform.NewKernelError("bandit.RedisStorage.Set", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return nil
}

func (s *RedisStorage) Del(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return platform.NewKernelError("bandit.RedisStorage.Del", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, platform.NewKernelError("bandit.RedisStorage.Exists", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return n > 0, nil
}

// SaveSnapshot marshals snap to JSON and writes it to store under key,
// with ttl (0 for no expiration).
func SaveSnapshot(ctx context.Context, store StorageProvider, key string, snap ModelSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return platform.NewKernelError("bandit.SaveSnapshot", "invalid_input", fmt.Errorf("%w: %v", platform.ErrInvalidInput, err))
	}
	return store.Set(ctx, key, string(data), ttl)
}

// LoadSnapshot reads key from store and unmarshals it into a
// ModelSnapshot. Returns (ModelSnapshot{}, false, nil) when the key is
// absent.
func LoadSnapshot(ctx context.Context, store StorageProvider, key string) (ModelSnapshot, bool, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return ModelSnapshot{}, false, err
	}
	if raw == "" {
		return ModelSnapshot{}, false, nil
	}
	var snap ModelSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return ModelSnapshot{}, false, platform.NewKernelError("bandit.LoadSnapshot", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return snap, true, nil
}

var _ StorageProvider = (*MemoryStorage)(nil)
var _ StorageProvider = (*RedisStorage)(nil)
