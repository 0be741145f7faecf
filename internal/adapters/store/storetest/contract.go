// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/okian/gridduel/internal/adapters/store"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

// LeaseTTL is short enough for tests and long enough for slow CI.
const LeaseTTL = 80 * time.Millisecond

const waitFor = 2 * time.Second

// Next reads one change or fails after a timeout.
func Next(ch <-chan store.Change) (store.Change, bool) {
	select {
	case c, ok := <-ch:
		return c, ok
	case <-time.After(waitFor):
		return store.Change{}, false
	}
}

// Run exercises the whole contract against backends produced by f.
func Run(t *testing.T, f Factory) {
	t.Helper()
	runPointOps(t, f)
	runTransactions(t, f)
	runWatch(t, f)
	runLeases(t, f)
}

func runPointOps(t *testing.T, f Factory) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		s := f(t)
		defer func() { _ = s.Close() }()

		Convey("When reading a missing key", func() {
			_, err := s.Get(ctx, "matches/none")
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
		})

		Convey("When writing and listing keys", func() {
			So(s.Put(ctx, "matchmaking_queue/b", []byte("2")), ShouldBeNil)
			So(s.Put(ctx, "matchmaking_queue/a", []byte("1")), ShouldBeNil)
			So(s.Put(ctx, "matches/x", []byte("m")), ShouldBeNil)

			got, err := s.Get(ctx, "matchmaking_queue/a")
			So(err, ShouldBeNil)
			So(string(got), ShouldEqual, "1")

			list, err := s.List(ctx, "matchmaking_queue/")
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 2)
			So(list[0].Key, ShouldEqual, "matchmaking_queue/a")
			So(list[1].Key, ShouldEqual, "matchmaking_queue/b")

			Convey("Then delete is idempotent", func() {
				So(s.Delete(ctx, "matchmaking_queue/a"), ShouldBeNil)
				So(s.Delete(ctx, "matchmaking_queue/a"), ShouldBeNil)
				_, err := s.Get(ctx, "matchmaking_queue/a")
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func runTransactions(t *testing.T, f Factory) {
	Convey("Given transactions", t, func() {
		ctx := context.Background()
		s := f(t)
		defer func() { _ = s.Close() }()

		Convey("When concurrent updates increment one counter", func() {
			const n = 25
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = store.Update(ctx, s, "counter", func(cur []byte, exists bool) ([]byte, error) {
						v := 0
						if exists {
							v, _ = strconv.Atoi(string(cur))
						}
						return []byte(strconv.Itoa(v + 1)), nil
					})
				}()
			}
			wg.Wait()

			Convey("Then no increment is lost", func() {
				got, err := s.Get(ctx, "counter")
				So(err, ShouldBeNil)
				So(string(got), ShouldEqual, strconv.Itoa(n))
			})
		})

		Convey("When the transaction function fails", func() {
			boom := errors.New("not searching")
			err := s.Transact(ctx, []string{"a", "b"}, func(tx store.Tx) error {
				So(tx.Put("a", []byte("1")), ShouldBeNil)
				return boom
			})

			Convey("Then its error is returned and nothing is written", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				_, err := s.Get(ctx, "a")
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a transaction touches an undeclared key", func() {
			err := s.Transact(ctx, []string{"a"}, func(tx store.Tx) error {
				return tx.Put("b", []byte("x"))
			})
			So(errors.Is(err, store.ErrUndeclaredKey), ShouldBeTrue)
		})

		Convey("When a transaction writes and deletes several keys", func() {
			So(s.Put(ctx, "old", []byte("x")), ShouldBeNil)
			err := s.Transact(ctx, []string{"old", "p1", "p2"}, func(tx store.Tx) error {
				if err := tx.Delete("old"); err != nil {
					return err
				}
				if _, err := tx.Get("old"); !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("expected deleted key to read as missing, got %v", err)
				}
				if err := tx.Put("p1", []byte("matched")); err != nil {
					return err
				}
				return tx.Put("p2", []byte("matched"))
			})

			Convey("Then all writes are visible together", func() {
				So(err, ShouldBeNil)
				_, err := s.Get(ctx, "old")
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
				v1, _ := s.Get(ctx, "p1")
				v2, _ := s.Get(ctx, "p2")
				So(string(v1), ShouldEqual, "matched")
				So(string(v2), ShouldEqual, "matched")
			})
		})

		Convey("When UpdateJSON targets a missing key without create", func() {
			type doc struct{ N int }
			err := store.UpdateJSON(ctx, s, "missing", nil, func(d *doc) error { d.N++; return nil })
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)

			err = store.UpdateJSON(ctx, s, "missing", func() *doc { return &doc{N: 41} }, func(d *doc) error { d.N++; return nil })
			So(err, ShouldBeNil)
			var got doc
			So(store.GetJSON(ctx, s, "missing", &got), ShouldBeNil)
			So(got.N, ShouldEqual, 42)
		})
	})
}

func runWatch(t *testing.T, f Factory) {
	Convey("Given a watcher", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := f(t)
		defer func() { _ = s.Close() }()

		ch, err := s.Watch(ctx, "moves/m1/")
		So(err, ShouldBeNil)

		Convey("When writes land inside and outside the prefix", func() {
			So(s.Put(ctx, "moves/m2/a/1", []byte("other")), ShouldBeNil)
			for i := 1; i <= 5; i++ {
				So(s.Put(ctx, fmt.Sprintf("moves/m1/a/%d", i), []byte(strconv.Itoa(i))), ShouldBeNil)
			}
			So(s.Delete(ctx, "moves/m1/a/1"), ShouldBeNil)

			Convey("Then only matching changes arrive, in order", func() {
				for i := 1; i <= 5; i++ {
					c, ok := Next(ch)
					So(ok, ShouldBeTrue)
					So(c.Key, ShouldEqual, fmt.Sprintf("moves/m1/a/%d", i))
					So(string(c.Value), ShouldEqual, strconv.Itoa(i))
				}
				c, ok := Next(ch)
				So(ok, ShouldBeTrue)
				So(c.Deleted, ShouldBeTrue)
			})
		})

		Convey("When a transaction commits", func() {
			So(s.Transact(ctx, []string{"moves/m1/x"}, func(tx store.Tx) error {
				return tx.Put("moves/m1/x", []byte("tx"))
			}), ShouldBeNil)

			Convey("Then watchers see it", func() {
				c, ok := Next(ch)
				So(ok, ShouldBeTrue)
				So(c.Key, ShouldEqual, "moves/m1/x")
			})
		})

		Convey("When the watch context ends", func() {
			cancel()

			Convey("Then the channel closes", func() {
				closed := false
				deadline := time.After(waitFor)
			loop:
				for {
					select {
					case _, ok := <-ch:
						if !ok {
							closed = true
							break loop
						}
					case <-deadline:
						break loop
					}
				}
				So(closed, ShouldBeTrue)
			})
		})
	})
}

func runLeases(t *testing.T, f Factory) {
	Convey("Given a lease", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := f(t)
		defer func() { _ = s.Close() }()

		ch, err := s.Watch(ctx, "presence/")
		So(err, ShouldBeNil)
		So(s.Lease(ctx, "presence/m/p", []byte("online"), []byte("offline"), LeaseTTL), ShouldBeNil)
		c, ok := Next(ch)
		So(ok, ShouldBeTrue)
		So(string(c.Value), ShouldEqual, "online")

		Convey("When it is not renewed", func() {
			c, ok := Next(ch)

			Convey("Then the store writes the will", func() {
				So(ok, ShouldBeTrue)
				So(string(c.Value), ShouldEqual, "offline")
				v, _ := s.Get(ctx, "presence/m/p")
				So(string(v), ShouldEqual, "offline")
			})
		})

		Convey("When it is renewed before expiry", func() {
			time.Sleep(LeaseTTL / 2)
			So(s.Lease(ctx, "presence/m/p", []byte("online2"), []byte("offline"), LeaseTTL), ShouldBeNil)
			time.Sleep(LeaseTTL * 3 / 4)

			Convey("Then the will has not fired yet", func() {
				v, _ := s.Get(ctx, "presence/m/p")
				So(string(v), ShouldEqual, "online2")
			})
		})

		Convey("When it is released", func() {
			So(s.Release(ctx, "presence/m/p", []byte("left")), ShouldBeNil)
			time.Sleep(LeaseTTL * 3)

			Convey("Then the final value stays", func() {
				v, _ := s.Get(ctx, "presence/m/p")
				So(string(v), ShouldEqual, "left")
			})
		})

		Convey("When it is revoked", func() {
			So(s.Revoke(ctx, "presence/m/p"), ShouldBeNil)
			v, _ := s.Get(ctx, "presence/m/p")
			So(string(v), ShouldEqual, "offline")
			So(s.Revoke(ctx, "presence/m/p"), ShouldBeNil)
		})
	})
}
