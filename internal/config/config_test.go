package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/aqsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.JobStore.Driver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.Repository.Driver, convey.ShouldEqual, "memory")
			convey.So(cfg.Processor.PollInterval, convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.Leecher.ReconnectDelay, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Leecher.AllowedTopics, convey.ShouldContain, "user.unassigned")
			convey.So(cfg.Leecher.AllowedTopics, convey.ShouldNotContain, "item.updated.Project")
			convey.So(cfg.Sync.DedupWindow, convey.ShouldEqual, 0)
			convey.So(cfg.Sync.FolderLikeTypes, convey.ShouldResemble, []string{"Folder"})
			convey.So(cfg.Metrics.Enabled, convey.ShouldBeTrue)
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "aqsync")
			convey.So(cfg.Metrics.RefreshInterval, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When the job store driver is unknown", func() {
			cfg.JobStore.Driver = "redis"

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, config.ErrUnknownDriver), convey.ShouldBeTrue)

				var fe *config.FieldError
				convey.So(errors.As(err, &fe), convey.ShouldBeTrue)
				convey.So(fe.Key, convey.ShouldEqual, "jobstore.driver")
				convey.So(err.Error(), convey.ShouldContainSubstring, "redis")
			})
		})

		convey.Convey("When the postgres repository has no dsn", func() {
			cfg.Repository.Driver = "postgres"

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the dedup window is negative", func() {
			cfg.Sync.DedupWindow = -time.Second

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the metrics buckets are out of order", func() {
			cfg.Metrics.Buckets = []float64{10, 5}

			convey.Convey("Then the key is reported", func() {
				var fe *config.FieldError
				convey.So(errors.As(cfg.Validate(), &fe), convey.ShouldBeTrue)
				convey.So(fe.Key, convey.ShouldEqual, "metrics.buckets")
				convey.So(errors.Is(fe, config.ErrUnknownDriver), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the metrics refresh interval is zero", func() {
			cfg.Metrics.RefreshInterval = 0

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
