package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every collector is registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.starsGranted.Add(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_stars_granted_total" {
						found = true
						So(f.GetMetric()[0].GetCounter().GetValue(), ShouldEqual, 3)
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics on duplicates", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording domain counters", func() {
			before := testutil.ToFloat64(globalManager.missingCriteria)
			RecordMissingCriteria(2)
			RecordStarsGranted(4)
			RecordRewardsUnlocked(1)
			RecordWinnersSelected(3)

			Convey("Then the counters move by the recorded amount", func() {
				So(testutil.ToFloat64(globalManager.missingCriteria)-before, ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.starsGranted), ShouldBeGreaterThanOrEqualTo, 4)
			})
		})

		Convey("When recording live update metrics", func() {
			RecordLivePublish("leaderboard_update")
			RecordLiveDelivery("leaderboard_update")
			RecordLiveDeliveryFailure("leaderboard_update", "slow_consumer")
			UpdateLiveConnections(5)
			UpdateLiveSubscriptions(7)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.liveConnections), ShouldEqual, 5)
				So(testutil.ToFloat64(globalManager.liveSubscriptions), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.liveDeliveryFailures.WithLabelValues("leaderboard_update", "slow_consumer")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording latency, queue and HTTP metrics", func() {
			So(func() {
				RecordScoreRecomputation(2.5)
				RecordScoreError()
				RecordLeaderboardComputation(1.0)
				RecordCoordinatorMutation("create", "ok", 3.0)
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerActiveCount(4)
				RecordWorkerProcessingLatency(12)
				RecordWorkerError()
				RecordJobDuplicate()
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("leaderboard", "GET", "200", 5)
				RecordErrorByComponent("broker", "marshal")
				RecordErrorByEndpoint("leaderboard", "GET", "not_found")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When gathering through the merged gatherer", func() {
			families, err := Gatherer().Gather()

			Convey("Then the custom metrics are present", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
