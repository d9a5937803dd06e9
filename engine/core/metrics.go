package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const AVG_COUNT uint8 = 30

// Fit outcomes reported by the solver.
const (
	FitAccepted = "accepted"
	FitStalled  = "stalled"
	FitRejected = "rejected"
)

var (
	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ewbik_solve_duration_seconds",
		Help:    "Duration of one full IK solve in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
	})

	fitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ewbik_bone_fit_total",
		Help: "Per-bone rotation fits by outcome",
	}, []string{"outcome"})

	segmentRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ewbik_segment_rebuild_total",
		Help: "Number of segment tree rebuilds caused by topology or effector changes",
	})

	lastResidual = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ewbik_last_residual",
		Help: "Weighted mean square heading deviation after the most recent solve",
	})
)

// MetricsState keeps a rolling average of solve times, in milliseconds.
type MetricsState struct {
	mutex        sync.Mutex
	avgCounter   uint8
	msTimes      [AVG_COUNT]float64
	msAvg        float64
	solves       int64
	lastResidual float64
}

var onceMetrics sync.Once
var metricsState *MetricsState

func getMetrics() *MetricsState {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return metricsState
}

// ObserveSolve records the duration of one solve and the residual it ended with.
func ObserveSolve(seconds float64, residual float64) {
	solveDuration.Observe(seconds)
	lastResidual.Set(residual)

	ms := getMetrics()
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.msTimes[ms.avgCounter] = seconds * 1000.0
	if ms.avgCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += ms.msTimes[i]
		}
		ms.msAvg = sum / float64(AVG_COUNT)
	}
	ms.avgCounter++
	ms.avgCounter %= AVG_COUNT
	ms.solves++
	ms.lastResidual = residual
}

// CountFit records the outcome of a single bone fit.
func CountFit(outcome string) {
	fitTotal.WithLabelValues(outcome).Inc()
}

func CountRebuild() {
	segmentRebuilds.Inc()
}

// MetricsSolveTime returns the average solve time in ms over the last AVG_COUNT solves.
func MetricsSolveTime() float64 {
	ms := getMetrics()
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return ms.msAvg
}

func MetricsSolves() (int64, float64) {
	ms := getMetrics()
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	return ms.solves, ms.lastResidual
}
