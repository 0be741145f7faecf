package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/gridduel/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.MatchmakingSearchLimit, convey.ShouldEqual, 20)
			convey.So(cfg.PvpDifficulty, convey.ShouldEqual, "medium")
			convey.So(cfg.MaxHints, convey.ShouldEqual, 3)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the duration helpers should convert milliseconds", func() {
			convey.So(cfg.HeartbeatInterval(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.PresenceTTL(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.ProgressInterval(), convey.ShouldEqual, 3*time.Second)
			convey.So(cfg.LiveTimeLimit(), convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.MatchmakingPollInterval(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.OrphanTTL(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.OrphanSweepInterval(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.MetricsRefreshInterval(), convey.ShouldEqual, 10*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":             func(c *config.Config) { c.Addr = " " },
			"unknown backend":        func(c *config.Config) { c.StoreBackend = "etcd" },
			"redis without address":  func(c *config.Config) { c.StoreBackend = config.BackendRedis; c.RedisAddr = "" },
			"zero search limit":      func(c *config.Config) { c.MatchmakingSearchLimit = 0 },
			"ttl below heartbeat":    func(c *config.Config) { c.PresenceTTLMS = c.HeartbeatIntervalMS },
			"zero progress interval": func(c *config.Config) { c.ProgressIntervalMS = 0 },
			"negative hints":         func(c *config.Config) { c.MaxHints = -1 },
			"zero outbox":            func(c *config.Config) { c.OutboxSize = 0 },
			"zero metrics refresh":   func(c *config.Config) { c.MetricsRefreshIntervalMS = 0 },
			"unknown difficulty":     func(c *config.Config) { c.PvpDifficulty = "nightmare" },
		}

		for name, mutate := range cases {
			convey.Convey("When "+name, func() {
				cfg := config.New()
				mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					err := cfg.Validate()
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When the redis backend has an address", func() {
			cfg := config.New()
			cfg.StoreBackend = config.BackendRedis

			convey.Convey("Then it validates", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
