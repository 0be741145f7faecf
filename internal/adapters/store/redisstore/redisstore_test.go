package redisstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/adapters/store/redisstore"
	"github.com/okian/gridduel/internal/adapters/store/storetest"
)

func newStore(t *testing.T, prefix string) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisstore.New(rdb, redisstore.WithPrefix(prefix), redisstore.WithReapInterval(10*time.Millisecond)), mr
}

func TestRedisStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t, "test:")
		return s
	})
}

func TestRedisStorePrefixAndDial(t *testing.T) {
	Convey("Given two stores sharing one Redis with different prefixes", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)

		a, err := redisstore.Dial(ctx, mr.Addr(), "", 0, redisstore.WithPrefix("a:"))
		So(err, ShouldBeNil)
		defer func() { _ = a.Close() }()
		b, err := redisstore.Dial(ctx, mr.Addr(), "", 0, redisstore.WithPrefix("b:"))
		So(err, ShouldBeNil)
		defer func() { _ = b.Close() }()

		So(a.Put(ctx, "matches/m", []byte("A")), ShouldBeNil)

		Convey("Then keys are namespaced", func() {
			_, err := b.Get(ctx, "matches/m")
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			So(mr.Exists("a:matches/m"), ShouldBeTrue)
		})

		Convey("Then internal lease keys are not listed", func() {
			So(a.Lease(ctx, "presence/m/p", []byte("on"), []byte("off"), time.Minute), ShouldBeNil)
			list, err := a.List(ctx, "")
			So(err, ShouldBeNil)
			keys := make([]string, 0, len(list))
			for _, kv := range list {
				keys = append(keys, kv.Key)
			}
			So(keys, ShouldResemble, []string{"matches/m", "presence/m/p"})
		})
	})

	Convey("Given an unreachable Redis", t, func() {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := redisstore.Dial(context.Background(), addr, "", 0)

		Convey("Then Dial reports the store unavailable", func() {
			So(errors.Is(err, store.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestRedisStoreTwoProcesses(t *testing.T) {
	Convey("Given two store instances on the same Redis", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mr := miniredis.RunT(t)
		mk := func() *redisstore.Store {
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return redisstore.New(rdb, redisstore.WithReapInterval(10*time.Millisecond))
		}
		a, b := mk(), mk()
		defer func() { _ = a.Close(); _ = b.Close() }()

		ch, err := b.Watch(ctx, "matchmaking_queue/")
		So(err, ShouldBeNil)

		Convey("When one commits a transaction", func() {
			So(a.Transact(ctx, []string{"matchmaking_queue/p1", "matchmaking_queue/p2"}, func(tx store.Tx) error {
				if err := tx.Put("matchmaking_queue/p1", []byte("matched")); err != nil {
					return err
				}
				return tx.Put("matchmaking_queue/p2", []byte("matched"))
			}), ShouldBeNil)

			Convey("Then the other sees both changes", func() {
				c1, ok1 := storetest.Next(ch)
				c2, ok2 := storetest.Next(ch)
				So(ok1 && ok2, ShouldBeTrue)
				So(c1.Key, ShouldEqual, "matchmaking_queue/p1")
				So(c2.Key, ShouldEqual, "matchmaking_queue/p2")
			})
		})
	})
}

func TestRedisStoreWatchReconnect(t *testing.T) {
	Convey("Given a watcher on a Redis that restarts", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s, mr := newStore(t, "test:")
		defer func() { _ = s.Close() }()

		ch, err := s.Watch(ctx, "matches/m")
		So(err, ShouldBeNil)

		mr.Close()
		So(mr.Restart(), ShouldBeNil)

		Convey("When another client writes after the restart", func() {
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer func() { _ = rdb.Close() }()
			other := redisstore.New(rdb, redisstore.WithPrefix("test:"))
			defer func() { _ = other.Close() }()
			So(other.Put(ctx, "matches/m", []byte("after")), ShouldBeNil)

			Convey("Then the watch channel closes so the watcher resyncs", func() {
				closed := false
				deadline := time.After(10 * time.Second)
			drain:
				for {
					select {
					case _, ok := <-ch:
						if !ok {
							closed = true
							break drain
						}
					case <-deadline:
						break drain
					}
				}
				So(closed, ShouldBeTrue)
			})
		})
	})
}
