package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

// counterValue reads a single series from a gathered registry.
func counterValue(reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.dispatchOutcomes.WithLabelValues("delivered").Inc()
				So(counterValue(registry, "test_unit_dispatch_outcomes_total",
					map[string]string{"status": "delivered", "env": "test"}), ShouldEqual, 1)
			})
		})

		Convey("When empty options are given", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil),
				WithConstLabels(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(m.namespace, ShouldEqual, "rally")
				So(m.subsystem, ShouldEqual, "tracker")
				So(len(m.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		reg := GetRegistry()

		Convey("When recording dispatch outcomes", func() {
			before := counterValue(reg, "rally_tracker_dispatch_outcomes_total", map[string]string{"status": "skipped"})
			RecordDispatchOutcome("skipped")
			RecordDispatchOutcome("skipped")

			Convey("Then the labelled counter advances", func() {
				after := counterValue(reg, "rally_tracker_dispatch_outcomes_total", map[string]string{"status": "skipped"})
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When flipping readiness", func() {
			SetAnalyticsReady(true)
			So(counterValue(reg, "rally_tracker_analytics_ready", nil), ShouldEqual, 1)
			SetAnalyticsReady(false)
			So(counterValue(reg, "rally_tracker_analytics_ready", nil), ShouldEqual, 0)
		})

		Convey("When recording everything else", func() {
			So(func() {
				RecordDispatchLatency(12)
				RecordIDCollision()
				RecordTrackResponse("200")
				UpdateSnippetBuffered(3)
				RecordSnippetReplay()
				UpdateQueueSize(1)
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("full")
				RecordWorkerProcessed()
				RecordWorkerError()
				RecordHTTPRequest("/matches", "POST", "202")
				RecordHTTPRequestDuration("/matches", "POST", "202", 1.5)
				RecordErrorByEndpoint("/matches", "POST", "client_error")
				UpdateLiveClients(2)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		done := make(chan struct{}, 10)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordDispatchOutcome("delivered")
					UpdateQueueSize(j)
					RecordHTTPRequest("/status", "GET", "200")
				}
				done <- struct{}{}
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}
		So(counterValue(GetRegistry(), "rally_tracker_dispatch_outcomes_total",
			map[string]string{"status": "delivered"}), ShouldBeGreaterThanOrEqualTo, 1000)
	})
}
