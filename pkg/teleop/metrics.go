package teleop

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gwillem/csvarm/pkg/motion"
)

// Metrics are the control-loop counters. A nil *Metrics records nothing.
type Metrics struct {
	ticks        prometheus.Counter
	overruns     prometheus.Counter
	replayedRows prometheus.Counter
	errors       *prometheus.CounterVec
	replaying    prometheus.Gauge
	tickSeconds  prometheus.Histogram
}

// NewMetrics registers the control-loop metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "csvarm_ticks_total",
			Help: "Control loop ticks executed.",
		}),
		overruns: f.NewCounter(prometheus.CounterOpts{
			Name: "csvarm_tick_overruns_total",
			Help: "Ticks that took longer than the loop period.",
		}),
		replayedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "csvarm_replayed_rows_total",
			Help: "Recorded rows sent to the actuator.",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "csvarm_errors_total",
			Help: "Control loop errors by stage.",
		}, []string{"stage"}),
		replaying: f.NewGauge(prometheus.GaugeOpts{
			Name: "csvarm_replaying",
			Help: "1 while a recording is being replayed, 0 when live.",
		}),
		tickSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "csvarm_tick_seconds",
			Help:    "Time spent inside one control loop tick.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
	}
}

func (m *Metrics) observeTick(d time.Duration, overrun bool, source motion.State, replayed bool) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickSeconds.Observe(d.Seconds())
	if overrun {
		m.overruns.Inc()
	}
	if replayed {
		m.replayedRows.Inc()
	}
	if source == motion.Replaying {
		m.replaying.Set(1)
	} else {
		m.replaying.Set(0)
	}
}

func (m *Metrics) observeError(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}
