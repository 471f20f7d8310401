package teleop

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// timingWindow is how many recent tick durations are kept for percentiles.
const timingWindow = 1024

// Timing summarizes how long recent ticks took against the loop period.
type Timing struct {
	Period   time.Duration
	Ticks    int
	Overruns int
	P50      time.Duration
	P99      time.Duration
	Max      time.Duration
}

func (t Timing) String() string {
	return fmt.Sprintf("%d ticks, %d over %v, p50 %v, p99 %v, max %v",
		t.Ticks, t.Overruns, t.Period, t.P50, t.P99, t.Max)
}

type tickTimer struct {
	period   time.Duration
	samples  stats.Float64Data // seconds, ring buffer
	next     int
	ticks    int
	overruns int
}

func newTickTimer(period time.Duration) *tickTimer {
	return &tickTimer{period: period, samples: make(stats.Float64Data, 0, timingWindow)}
}

// add records one tick and reports whether it overran the period.
func (t *tickTimer) add(d time.Duration) bool {
	if len(t.samples) < timingWindow {
		t.samples = append(t.samples, d.Seconds())
	} else {
		t.samples[t.next] = d.Seconds()
		t.next = (t.next + 1) % timingWindow
	}
	t.ticks++
	over := d > t.period
	if over {
		t.overruns++
	}
	return over
}

func (t *tickTimer) report() Timing {
	r := Timing{Period: t.period, Ticks: t.ticks, Overruns: t.overruns}
	if len(t.samples) == 0 {
		return r
	}
	seconds := func(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
	if v, err := stats.Percentile(t.samples, 50); err == nil {
		r.P50 = seconds(v)
	}
	if v, err := stats.Percentile(t.samples, 99); err == nil {
		r.P99 = seconds(v)
	}
	if v, err := stats.Max(t.samples); err == nil {
		r.Max = seconds(v)
	}
	return r
}
