package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/gridduel/internal/app"
	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/config"
	"github.com/okian/gridduel/internal/coordinator"
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/puzzle"
	"github.com/okian/gridduel/pkg/logger"
	"github.com/okian/gridduel/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service with default options", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("Then nothing is available before Start", func() {
			So(svc.Coordinator(), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			_, err := svc.SweepNow(context.Background())
			So(err, ShouldEqual, service.ErrNotStarted)
		})

		Convey("When it is started twice", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the coordinator is ready and stats are reported", func() {
				So(svc.Coordinator(), ShouldNotBeNil)
				So(svc.Puzzles(), ShouldNotBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["backend"], ShouldEqual, config.BackendMemory)
				So(stats["searching"], ShouldEqual, 0)
				So(svc.SessionOptions(), ShouldNotBeEmpty)
			})

			Convey("And Stop is idempotent", func() {
				svc.Stop()
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := config.New()
		cfg.StoreBackend = "etcd"
		svc := service.New(service.WithConfig(cfg))

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})

	Convey("Given a redis backend nobody listens on", t, func() {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := config.New()
		cfg.StoreBackend = config.BackendRedis
		cfg.RedisAddr = addr
		svc := service.New(service.WithConfig(cfg))

		Convey("Then Start reports the store as unavailable", func() {
			err := svc.Start(context.Background())
			So(err, ShouldNotBeNil)
			So(errors.Is(err, store.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestService_Sweep(t *testing.T) {
	Convey("Given a started service with a short orphan TTL", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.OrphanTTLMS = 1
		st := store.NewMemoryStore()
		defer func() { _ = st.Close() }()
		svc := service.New(service.WithConfig(cfg), service.WithStore(st))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		coord := svc.Coordinator()
		_, err := coord.CreateMatch(ctx, model.ModeBlindRace, puzzle.Reference(model.DifficultyEasy),
			coordinator.Player{ID: "a"}, coordinator.Player{ID: "b"})
		So(err, ShouldBeNil)
		time.Sleep(5 * time.Millisecond)

		Convey("When a sweep runs", func() {
			n, err := svc.SweepNow(ctx)

			Convey("Then the unreferenced WAITING match is removed and counted", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				stats := svc.GetStats()
				So(stats["sweeps"], ShouldEqual, int64(1))
				So(stats["orphansSwept"], ShouldEqual, int64(1))
			})
		})
	})
}

func TestService_SystemMetrics(t *testing.T) {
	Convey("Given a service with a short metrics refresh interval", t, func() {
		cfg := config.New()
		cfg.MetricsRefreshIntervalMS = 20
		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("Then system gauges are sampled on that interval", func() {
			So(metrics.RefreshInterval(), ShouldEqual, 20*time.Millisecond)
			So(metrics.Enabled(), ShouldBeTrue)
			deadline := time.Now().Add(2 * time.Second)
			for svc.GetStats()["systemSamples"].(int64) < 2 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(svc.GetStats()["systemSamples"], ShouldBeGreaterThanOrEqualTo, int64(2))
		})
	})

	Convey("Given a service with metrics disabled", t, func() {
		cfg := config.New()
		cfg.MetricsEnabled = false
		cfg.MetricsRefreshIntervalMS = 20
		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer func() {
			svc.Stop()
			metrics.Configure(metrics.WithMetricsEnabled(true))
		}()

		Convey("Then recording is off and no system samples are taken", func() {
			So(metrics.Enabled(), ShouldBeFalse)
			time.Sleep(100 * time.Millisecond)
			So(svc.GetStats()["systemSamples"], ShouldEqual, int64(0))
		})
	})
}

func TestService_SharedRedis(t *testing.T) {
	Convey("Given two services sharing one redis", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		start := func() *service.Service {
			cfg := config.New()
			cfg.StoreBackend = config.BackendRedis
			cfg.RedisAddr = mr.Addr()
			cfg.RedisPrefix = "shared:"
			cfg.RedisLeaseSweepIntervalMS = 20
			svc := service.New(service.WithConfig(cfg))
			So(svc.Start(ctx), ShouldBeNil)
			return svc
		}
		one, two := start(), start()
		defer one.Stop()
		defer two.Stop()

		Convey("When players queue on different instances", func() {
			_, err := one.Coordinator().JoinMatchmaking(ctx, coordinator.Player{ID: "p1"}, model.ModeLiveBattle)
			So(err, ShouldBeNil)
			_, err = two.Coordinator().JoinMatchmaking(ctx, coordinator.Player{ID: "p2"}, model.ModeLiveBattle)
			So(err, ShouldBeNil)
			mid, err := two.Coordinator().TryMatchmaking(ctx, "p2", model.ModeLiveBattle)

			Convey("Then they are paired through the store", func() {
				So(err, ShouldBeNil)
				So(mid, ShouldNotBeEmpty)
				req, err := one.Coordinator().GetMatchmakingRequest(ctx, "p1")
				So(err, ShouldBeNil)
				So(req.MatchID, ShouldEqual, mid)
				m, err := one.Coordinator().GetMatch(ctx, mid)
				So(err, ShouldBeNil)
				So(m.HasPlayer("p1"), ShouldBeTrue)
				So(m.HasPlayer("p2"), ShouldBeTrue)
			})
		})
	})
}
