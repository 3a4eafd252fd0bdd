package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/starchallenge/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When a key is recorded", func() {
			d := dedupe.NewInMemoryDeduper()
			first := d.SeenAndRecord(ctx, dedupe.StarGrantKey("perf-1"))
			second := d.SeenAndRecord(ctx, dedupe.StarGrantKey("perf-1"))

			Convey("Then only the first call reports it as new", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "k")
			d.Unrecord(ctx, "k")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
			})
		})

		Convey("When the bound is reached", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, k := range []string{"a", "b", "c", "d"} {
				So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
			}

			Convey("Then the oldest key is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
			}
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "k-0"), ShouldBeTrue)
		})

		Convey("When many goroutines race on one key", func() {
			d := dedupe.NewInMemoryDeduper()
			var winners atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "same") {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one records it", func() {
				So(winners.Load(), ShouldEqual, 1)
			})
		})
	})
}
