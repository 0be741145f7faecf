// Package redisstore implements store.Store on Redis so several coordinator
// processes can share matches, queues and presence.
//
// Data keys live under a configurable prefix. Every write is published on
// "<prefix>chg|<key>" inside the same MULTI/EXEC, so watchers see changes in
// commit order. Leases are tracked in a sorted set scored by deadline with
// their wills in a hash; a reaper in every process fires expired wills.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/pkg/logger"
)

const (
	backend      = "redis"
	channelTag   = "chg|"
	leasesSuffix = "_leases"
	willsSuffix  = "_wills"
	scanCount    = 256
	mgetChunk    = 256
)

// Store is a Redis-backed store.Store.
type Store struct {
	rdb    redis.UniversalClient
	owned  bool
	prefix string
	o      options

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Dial connects to addr, pings it and starts the lease reaper.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", store.ErrUnavailable, addr, err)
	}
	s := New(rdb, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{rdb: rdb, prefix: o.prefix, o: o, stop: make(chan struct{})}
	s.wg.Add(1)
	go s.reap()
	return s
}

func (s *Store) full(key string) string    { return s.prefix + key }
func (s *Store) channel(key string) string { return s.prefix + channelTag + key }
func (s *Store) leasesKey() string         { return s.prefix + leasesSuffix }
func (s *Store) willsKey() string          { return s.prefix + willsSuffix }

func (s *Store) internal(full string) bool {
	return full == s.leasesKey() || full == s.willsKey()
}

// wrap maps client errors onto store sentinels.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return store.ErrNotFound
	case errors.Is(err, redis.ErrClosed):
		return store.ErrClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
}

func (s *Store) publish(ctx context.Context, p redis.Pipeliner, c store.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	p.Publish(ctx, s.channel(c.Key), payload)
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	defer func(start time.Time) { store.Observe(backend, "get", start, err) }(time.Now())
	v, err := s.rdb.Get(ctx, s.full(key)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, wrap(err))
	}
	return v, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) (err error) {
	defer func(start time.Time) { store.Observe(backend, "put", start, err) }(time.Now())
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.full(key), value, 0)
		return s.publish(ctx, p, store.Change{Key: key, Value: value})
	})
	return wrap(err)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { store.Observe(backend, "delete", start, err) }(time.Now())
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.full(key))
		return s.publish(ctx, p, store.Change{Key: key, Deleted: true})
	})
	return wrap(err)
}

// List implements store.Store with SCAN + MGET.
func (s *Store) List(ctx context.Context, prefix string) (_ []store.KV, err error) {
	defer func(start time.Time) { store.Observe(backend, "list", start, err) }(time.Now())

	var fulls []string
	iter := s.rdb.Scan(ctx, 0, globEscape(s.full(prefix))+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		if k := iter.Val(); !s.internal(k) {
			fulls = append(fulls, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(err)
	}
	sort.Strings(fulls)

	out := make([]store.KV, 0, len(fulls))
	for i := 0; i < len(fulls); i += mgetChunk {
		chunk := fulls[i:min(i+mgetChunk, len(fulls))]
		vals, err := s.rdb.MGet(ctx, chunk...).Result()
		if err != nil {
			return nil, wrap(err)
		}
		for j, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue // deleted between SCAN and MGET
			}
			out = append(out, store.KV{Key: strings.TrimPrefix(chunk[j], s.prefix), Value: []byte(str)})
		}
	}
	return out, nil
}

// abortError carries an error returned by the caller's transaction function
// through go-redis so it is not confused with a backend failure.
type abortError struct{ err error }

func (a abortError) Error() string { return a.err.Error() }

// Transact implements store.Store with WATCH/MULTI/EXEC, retrying when a
// watched key changed underneath.
func (s *Store) Transact(ctx context.Context, keys []string, fn func(store.Tx) error) (err error) {
	defer func(start time.Time) { store.Observe(backend, "transact", start, err) }(time.Now())

	fulls := make([]string, len(keys))
	for i, k := range keys {
		fulls[i] = s.full(k)
	}

	txf := func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, fulls...).Result()
		if err != nil {
			return err
		}
		snapshot := make(map[string][]byte, len(keys))
		for i, v := range vals {
			if str, ok := v.(string); ok {
				snapshot[keys[i]] = []byte(str)
			}
		}
		buf := store.NewTxBuffer(keys, snapshot)
		if err := fn(buf); err != nil {
			return abortError{err}
		}
		changes := buf.Changes()
		if len(changes) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, c := range changes {
				if c.Deleted {
					p.Del(ctx, s.full(c.Key))
				} else {
					p.Set(ctx, s.full(c.Key), c.Value, 0)
				}
				if err := s.publish(ctx, p, c); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.o.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, fulls...)
		var abort abortError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &abort):
			return abort.err
		case errors.Is(err, redis.TxFailedErr):
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		default:
			return wrap(err)
		}
	}
	return fmt.Errorf("%w: %d attempts over %v", store.ErrConflict, s.o.maxRetries, keys)
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(1+rand.IntN(1+min(attempt, 10))) * time.Millisecond //nolint:gosec // jitter only
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Watch implements store.Store with PSUBSCRIBE. It returns once the
// subscription is confirmed so no later write is missed. Changes published
// while the connection is down are lost, so a second subscribe confirmation
// (go-redis resubscribing after a reconnect) closes the channel and the
// watcher has to resync from a fresh read.
func (s *Store) Watch(ctx context.Context, prefix string) (<-chan store.Change, error) {
	ps := s.rdb.PSubscribe(ctx, globEscape(s.channel(prefix))+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, wrap(err)
	}

	sub := store.NewSubscriber(ctx, prefix)
	msgs := ps.ChannelWithSubscriptions()
	go func() {
		defer func() { _ = ps.Close() }()
		for {
			select {
			case <-sub.Done():
				return
			case <-s.stop:
				sub.Stop()
				return
			case in, ok := <-msgs:
				if !ok {
					sub.Stop()
					return
				}
				switch msg := in.(type) {
				case *redis.Subscription:
					s.o.log.Warn(ctx, "watch resubscribed, closing for resync",
						logger.String("prefix", prefix), logger.String("kind", msg.Kind))
					sub.Stop()
					return
				case *redis.Message:
					var c store.Change
					if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
						s.o.log.Warn(ctx, "dropping malformed change", logger.String("channel", msg.Channel), logger.Error(err))
						continue
					}
					sub.Offer(c)
				}
			}
		}
	}()
	return sub.C(), nil
}

// Lease implements store.Store.
func (s *Store) Lease(ctx context.Context, key string, value, will []byte, ttl time.Duration) (err error) {
	defer func(start time.Time) { store.Observe(backend, "lease", start, err) }(time.Now())
	if ttl <= 0 {
		return fmt.Errorf("lease %s: ttl must be positive", key)
	}
	deadline := s.o.now().Add(ttl).UnixMilli()
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.full(key), value, 0)
		p.ZAdd(ctx, s.leasesKey(), redis.Z{Score: float64(deadline), Member: key})
		p.HSet(ctx, s.willsKey(), key, will)
		return s.publish(ctx, p, store.Change{Key: key, Value: value})
	})
	return wrap(err)
}

// Release implements store.Store.
func (s *Store) Release(ctx context.Context, key string, value []byte) (err error) {
	defer func(start time.Time) { store.Observe(backend, "release", start, err) }(time.Now())
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, s.leasesKey(), key)
		p.HDel(ctx, s.willsKey(), key)
		p.Set(ctx, s.full(key), value, 0)
		return s.publish(ctx, p, store.Change{Key: key, Value: value})
	})
	return wrap(err)
}

// Revoke implements store.Store.
func (s *Store) Revoke(ctx context.Context, key string) error {
	_, err := s.fireWill(ctx, key, false)
	return err
}

// fireWill writes key's will and drops its lease. With onlyExpired it does
// nothing unless the lease deadline has passed. It reports whether a will
// was written.
func (s *Store) fireWill(ctx context.Context, key string, onlyExpired bool) (bool, error) {
	fired := false
	txf := func(tx *redis.Tx) error {
		fired = false
		score, err := tx.ZScore(ctx, s.leasesKey(), key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if onlyExpired && int64(score) > s.o.now().UnixMilli() {
			return nil
		}
		will, err := tx.HGet(ctx, s.willsKey(), key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, s.leasesKey(), key)
			p.HDel(ctx, s.willsKey(), key)
			p.Set(ctx, s.full(key), will, 0)
			return s.publish(ctx, p, store.Change{Key: key, Value: will})
		})
		if err == nil {
			fired = true
		}
		return err
	}
	for attempt := 0; attempt < s.o.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, s.leasesKey(), s.willsKey())
		if errors.Is(err, redis.TxFailedErr) {
			if err := backoff(ctx, attempt); err != nil {
				return false, err
			}
			continue
		}
		return fired, wrap(err)
	}
	return false, fmt.Errorf("%w: revoke %s", store.ErrConflict, key)
}

// reap fires the wills of expired leases.
func (s *Store) reap() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.o.reapInterval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		now := s.o.now().UnixMilli()
		keys, err := s.rdb.ZRangeByScore(ctx, s.leasesKey(), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%d", now),
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.ErrClosed) {
				s.o.log.Warn(ctx, "lease sweep failed", logger.Error(err))
			}
			continue
		}
		for _, k := range keys {
			fired, err := s.fireWill(ctx, k, true)
			if err != nil {
				s.o.log.Warn(ctx, "firing lease will failed", logger.String("key", k), logger.Error(err))
				continue
			}
			if fired {
				s.o.log.Debug(ctx, "lease expired, wrote will", logger.String("key", k))
			}
		}
	}
}

// Close stops the reaper and watchers and closes the client if Dial opened it.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if s.owned {
			err = s.rdb.Close()
		}
	})
	return err
}

// globEscape escapes Redis glob metacharacters.
func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
