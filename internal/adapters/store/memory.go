package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

const memoryBackend = "memory"

type memLease struct {
	will  []byte
	gen   uint64
	timer *time.Timer
}

// MemoryStore is a process-local Store. Transactions run under the store
// lock, so they are trivially serialisable.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	subs   map[*Subscriber]struct{}
	leases map[string]*memLease
	gen    uint64
	closed bool

	log logger.Logger
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		data:   make(map[string][]byte),
		subs:   make(map[*Subscriber]struct{}),
		leases: make(map[string]*memLease),
		log:    o.log.Named("memstore"),
	}
}

// Observe records latency and failures of a store operation; ErrNotFound is not a failure.
func Observe(backend, op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOp(backend, op, start, err)
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (_ []byte, err error) {
	defer func(start time.Time) { Observe(memoryBackend, "get", start, err) }(time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	start := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.applyLocked([]Change{{Key: key, Value: append([]byte(nil), value...)}})
	Observe(memoryBackend, "put", start, nil)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.data[key]; !ok {
		return nil
	}
	m.applyLocked([]Change{{Key: key, Deleted: true}})
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]KV, error) {
	start := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []KV
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KV{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	Observe(memoryBackend, "list", start, nil)
	return out, nil
}

// Transact implements Store.
func (m *MemoryStore) Transact(ctx context.Context, keys []string, fn func(Tx) error) (err error) {
	defer func(start time.Time) { Observe(memoryBackend, "transact", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			snapshot[k] = v
		}
	}
	tx := NewTxBuffer(keys, snapshot)
	if err := fn(tx); err != nil {
		return err
	}
	m.applyLocked(tx.Changes())
	return nil
}

// Watch implements Store.
func (m *MemoryStore) Watch(ctx context.Context, prefix string) (<-chan Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	sub := NewSubscriber(ctx, prefix)
	m.subs[sub] = struct{}{}
	go func() {
		<-sub.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}()
	return sub.C(), nil
}

// Lease implements Store with a timer per key.
func (m *MemoryStore) Lease(_ context.Context, key string, value, will []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("lease %s: ttl must be positive", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	if l, ok := m.leases[key]; ok {
		l.timer.Stop()
	}
	l := &memLease{will: append([]byte(nil), will...), gen: gen}
	l.timer = time.AfterFunc(ttl, func() { m.expire(key, gen) })
	m.leases[key] = l
	m.applyLocked([]Change{{Key: key, Value: append([]byte(nil), value...)}})
	return nil
}

// Release implements Store.
func (m *MemoryStore) Release(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if l, ok := m.leases[key]; ok {
		l.timer.Stop()
		delete(m.leases, key)
	}
	m.applyLocked([]Change{{Key: key, Value: append([]byte(nil), value...)}})
	return nil
}

// Revoke implements Store.
func (m *MemoryStore) Revoke(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	l, ok := m.leases[key]
	if !ok {
		return nil
	}
	l.timer.Stop()
	delete(m.leases, key)
	m.applyLocked([]Change{{Key: key, Value: l.will}})
	return nil
}

func (m *MemoryStore) expire(key string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[key]
	if m.closed || !ok || l.gen != gen {
		return
	}
	delete(m.leases, key)
	m.log.Debug(context.Background(), "lease expired, writing will", logger.String("key", key))
	m.applyLocked([]Change{{Key: key, Value: l.will}})
}

// applyLocked writes changes and fans them out. Caller holds m.mu.
func (m *MemoryStore) applyLocked(changes []Change) {
	for _, c := range changes {
		if c.Deleted {
			delete(m.data, c.Key)
		} else {
			m.data[c.Key] = c.Value
		}
		for sub := range m.subs {
			sub.Offer(c)
		}
	}
}

// Close stops every subscriber and lease.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, l := range m.leases {
		l.timer.Stop()
	}
	for sub := range m.subs {
		sub.Stop()
	}
	return nil
}
