package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "groundstation-safety/internal/telemetry/domain"
)

const (
	defaultKeyPrefix = "gs:signal:"
	defaultTTL       = 24 * time.Hour
	defaultBuffer    = 1024
	writeTimeout     = 2 * time.Second
)

// KV is the subset of the redis client the mirror uses.
type KV interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// Snapshot is the mirrored form of a signal.
type Snapshot struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Timestamp float64 `json:"ts"`
}

type write struct {
	name  string
	state telemetry.SignalState
}

// SnapshotMirror copies the latest value of every signal into redis so other
// tools can read live state without talking to the ground station. Writes
// are queued; the signal update path never waits on redis.
type SnapshotMirror struct {
	kv     KV
	prefix string
	ttl    time.Duration
	logger *log.Logger

	queue     chan write
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Uint64
}

// MirrorOption configures the mirror.
type MirrorOption func(*SnapshotMirror)

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) MirrorOption {
	return func(m *SnapshotMirror) {
		if prefix != "" {
			m.prefix = prefix
		}
	}
}

// WithTTL sets the key expiry.
func WithTTL(ttl time.Duration) MirrorOption {
	return func(m *SnapshotMirror) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger sets the mirror logger.
func WithLogger(logger *log.Logger) MirrorOption {
	return func(m *SnapshotMirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewClient builds a redis client from connection settings.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewSnapshotMirror constructs a mirror and starts its writer.
func NewSnapshotMirror(kv KV, opts ...MirrorOption) (*SnapshotMirror, error) {
	if kv == nil {
		return nil, errors.New("snapshot mirror: nil client")
	}
	m := &SnapshotMirror{
		kv:     kv,
		prefix: defaultKeyPrefix,
		ttl:    defaultTTL,
		logger: log.Default(),
		queue:  make(chan write, defaultBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	go m.run()
	return m, nil
}

// Observe queues a signal update. Matches telemetry application.Observer.
func (m *SnapshotMirror) Observe(name string, state telemetry.SignalState) {
	if m == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- write{name: name, state: state}:
	default:
		if n := m.dropped.Add(1); n == 1 || n%1000 == 0 {
			m.logger.Printf("snapshot mirror: queue full, dropped %d updates", n)
		}
	}
}

// Load reads a mirrored signal.
func (m *SnapshotMirror) Load(ctx context.Context, name string) (Snapshot, bool, error) {
	raw, err := m.kv.Get(ctx, m.prefix+name).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// Close stops accepting updates and waits for queued writes to finish.
func (m *SnapshotMirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.queue)
		m.mu.Unlock()
		<-m.done
	})
}

func (m *SnapshotMirror) run() {
	defer close(m.done)
	for w := range m.queue {
		m.store(w)
	}
}

func (m *SnapshotMirror) store(w write) {
	payload, err := json.Marshal(Snapshot{Name: w.name, Value: w.state.Value, Timestamp: w.state.Timestamp})
	if err != nil {
		m.logger.Printf("snapshot mirror: encode %s: %v", w.name, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := m.kv.Set(ctx, m.prefix+w.name, payload, m.ttl).Err(); err != nil {
		m.logger.Printf("snapshot mirror: set %s: %v", w.name, err)
	}
}
