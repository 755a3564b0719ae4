// Package metrics exposes Prometheus collectors for rooms, links and analysis sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meet"

var (
	promRoomCurrent        prometheus.Gauge
	promRoomDuration       prometheus.Histogram
	promMemberCurrent      prometheus.Gauge
	promPendingCurrent     prometheus.Gauge
	promAdmissionCounter   *prometheus.CounterVec
	promLinkCurrent        prometheus.Gauge
	promSignalDropped      *prometheus.CounterVec
	promAnalysisCurrent    prometheus.Gauge
	promAnalysisOutcome    *prometheus.CounterVec
	promChatMessageCounter prometheus.Counter
)

func init() {
	promRoomCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "total",
	})
	promRoomDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "room",
		Name:      "duration_seconds",
		Buckets:   []float64{5, 10, 60, 5 * 60, 10 * 60, 30 * 60, 60 * 60, 2 * 60 * 60, 5 * 60 * 60},
	})
	promMemberCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "member",
		Name:      "total",
	})
	promPendingCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "pending_total",
	})
	promAdmissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admission",
		Name:      "decisions",
	}, []string{"decision"})
	promLinkCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mesh",
		Name:      "links_total",
	})
	promSignalDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signal",
		Name:      "dropped",
	}, []string{"type", "reason"})
	promAnalysisCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "sessions_total",
	})
	promAnalysisOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "outcomes",
	}, []string{"outcome"})
	promChatMessageCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "messages",
	})

	prometheus.MustRegister(promRoomCurrent)
	prometheus.MustRegister(promRoomDuration)
	prometheus.MustRegister(promMemberCurrent)
	prometheus.MustRegister(promPendingCurrent)
	prometheus.MustRegister(promAdmissionCounter)
	prometheus.MustRegister(promLinkCurrent)
	prometheus.MustRegister(promSignalDropped)
	prometheus.MustRegister(promAnalysisCurrent)
	prometheus.MustRegister(promAnalysisOutcome)
	prometheus.MustRegister(promChatMessageCounter)
}

func RoomStarted() {
	promRoomCurrent.Inc()
}

func RoomEnded(createdAt time.Time) {
	promRoomCurrent.Dec()
	if !createdAt.IsZero() {
		promRoomDuration.Observe(time.Since(createdAt).Seconds())
	}
}

func MemberJoined() { promMemberCurrent.Inc() }

func MemberLeft(n int) { promMemberCurrent.Sub(float64(n)) }

func PendingAdded() { promPendingCurrent.Inc() }

func PendingResolved(decision string) {
	promPendingCurrent.Dec()
	promAdmissionCounter.WithLabelValues(decision).Inc()
}

func LinksOpened(n int) { promLinkCurrent.Add(float64(n)) }

func LinksClosed(n int) { promLinkCurrent.Sub(float64(n)) }

func SignalDropped(kind, reason string) {
	promSignalDropped.WithLabelValues(kind, reason).Inc()
}

func AnalysisStarted() { promAnalysisCurrent.Inc() }

func AnalysisFinished(outcome string) {
	promAnalysisCurrent.Dec()
	promAnalysisOutcome.WithLabelValues(outcome).Inc()
}

func ChatMessage() { promChatMessageCounter.Inc() }
