package messagepool

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore is an optional, pluggable backend for MessagePool's "seen"
// set. The in-process map MessagePool uses by default is fine for a
// single process; DedupStore lets a fleet of worker processes sharing
// one relay pool agree on which events have already been delivered, by
// backing the seen-set with Redis instead. Mirrors the pack's own
// memory/Redis cache-backend split (CacheBackend / RedisCache).
type DedupStore interface {
	// MarkSeen returns true if key was NOT previously marked (i.e. the
	// caller should enqueue), atomically recording it as seen either way.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (firstSighting bool, err error)
	Close() error
}

// MemoryDedupStore is the default, zero-configuration DedupStore backed
// by an in-process map; it never expires entries (matching MessagePool's
// own unbounded "seen" set) and ignores the ttl argument.
type MemoryDedupStore struct {
	mp *MessagePool
}

// NewMemoryDedupStore adapts an existing MessagePool's seen-set so it can
// be used wherever a DedupStore is expected.
func NewMemoryDedupStore(mp *MessagePool) *MemoryDedupStore {
	return &MemoryDedupStore{mp: mp}
}

func (m *MemoryDedupStore) MarkSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mp.mu.Lock()
	defer m.mp.mu.Unlock()
	if _, ok := m.mp.seen[key]; ok {
		return false, nil
	}
	m.mp.seen[key] = struct{}{}
	return true, nil
}

func (m *MemoryDedupStore) Close() error { return nil }

// RedisDedupStore backs the dedup set with Redis SETNX, so multiple
// MessagePool-owning processes attached to the same relay fleet converge
// on a single delivery of each event.
type RedisDedupStore struct {
	client *redis.Client
	prefix string
}

// NewRedisDedupStore connects to redisURL (redis://[:password@]host:port/db)
// and returns a DedupStore keying entries under prefix.
func NewRedisDedupStore(redisURL, prefix string) (*RedisDedupStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisDedupStore{client: client, prefix: prefix}, nil
}

func (r *RedisDedupStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisDedupStore) Close() error {
	return r.client.Close()
}
