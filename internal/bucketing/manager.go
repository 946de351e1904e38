package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"admin-auth-service/internal/config"
)

// Manager assigns security events to stable partitions so the analytics
// sinks can shard writes and queries. Same key, same bucket, always.
type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		eventBuckets: cfg.Bucketing.EventBuckets,
	}
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// EventBucket returns the partition for an event key (0 to eventBuckets-1).
func (m *Manager) EventBucket(key string) int {
	return int(m.hashKey(key) % uint64(m.eventBuckets))
}

// DateBucket returns the UTC day partition for event storage.
func (m *Manager) DateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// TimeBucket aligns a timestamp down to a window boundary, in unix seconds.
func (m *Manager) TimeBucket(at time.Time, windowSeconds int) int64 {
	return at.Unix() / int64(windowSeconds) * int64(windowSeconds)
}

func (m *Manager) EventBuckets() int {
	return m.eventBuckets
}

func (m *Manager) hashKey(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
