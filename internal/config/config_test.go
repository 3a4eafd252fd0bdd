package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/starchallenge/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.StarDivisor, convey.ShouldEqual, 10)
			convey.So(cfg.WinnerCount, convey.ShouldEqual, 3)
			convey.So(cfg.IdempotentWinners, convey.ShouldBeTrue)
			convey.So(cfg.IdempotentRewards, convey.ShouldBeTrue)
			convey.So(cfg.SnapshotDelay(), convey.ShouldEqual, 100*time.Millisecond)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When the driver is unknown", func() {
			cfg.DBDriver = "oracle"
			err := cfg.Validate()

			convey.Convey("Then it should fail with ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "oracle")
			})
		})

		convey.Convey("When the star divisor is zero", func() {
			cfg.StarDivisor = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the winner count is zero", func() {
			cfg.WinnerCount = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the dsn is blank", func() {
			cfg.DBDSN = "  "
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
