// Package metrics implements the tracker's prometheus collector: a custom
// Collector whose prometheus.Desc fields are filled from atomic
// counters at scrape time, rather than registering
// prometheus.Counter/Gauge objects directly — a better fit for this kind
// of "snapshot of running totals" metric.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the announce pipeline's running totals and the
// current size of the registry/caches. It satisfies announce.Counters.
type Collector struct {
	successful atomic.Uint64
	failed     atomic.Uint64
	blocked    atomic.Uint64

	swarms   func() int
	peers    func() int
	torrents func() int
	users    func() int

	successfulMetric *prometheus.Desc
	failedMetric     *prometheus.Desc
	blockedMetric    *prometheus.Desc
	swarmsMetric     *prometheus.Desc
	torrentsMetric   *prometheus.Desc
	usersMetric      *prometheus.Desc
}

// Gauges bundles the callbacks Collect uses to snapshot live sizes. Each
// is called once per scrape; cheap Len()-style calls are assumed.
type Gauges struct {
	Swarms   func() int
	Torrents func() int
	Users    func() int
}

// New builds a Collector. gauges' fields may be left nil, in which case
// the corresponding metric always reports zero.
func New(gauges Gauges) *Collector {
	noop := func() int { return 0 }
	c := &Collector{
		swarms:   gauges.Swarms,
		torrents: gauges.Torrents,
		users:    gauges.Users,

		successfulMetric: prometheus.NewDesc("tracker_announces_successful_total", "Number of successful announce requests", nil, nil),
		failedMetric:     prometheus.NewDesc("tracker_announces_failed_total", "Number of announce requests rejected as malformed", nil, nil),
		blockedMetric:    prometheus.NewDesc("tracker_announces_blocked_total", "Number of announce requests rejected by a ban or rate limit", nil, nil),
		swarmsMetric:     prometheus.NewDesc("tracker_swarms", "Number of swarms currently tracked", nil, nil),
		torrentsMetric:   prometheus.NewDesc("tracker_torrents", "Number of known torrents cached", nil, nil),
		usersMetric:      prometheus.NewDesc("tracker_users", "Number of known users cached", nil, nil),
	}
	if c.swarms == nil {
		c.swarms = noop
	}
	if c.torrents == nil {
		c.torrents = noop
	}
	if c.users == nil {
		c.users = noop
	}
	return c
}

// IncSuccessful records one successful announce.
func (c *Collector) IncSuccessful() { c.successful.Add(1) }

// IncFailed records one announce rejected as malformed.
func (c *Collector) IncFailed() { c.failed.Add(1) }

// IncBlocked records one announce rejected by a ban or the rate limiter.
func (c *Collector) IncBlocked() { c.blocked.Add(1) }

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.successfulMetric
	ch <- c.failedMetric
	ch <- c.blockedMetric
	ch <- c.swarmsMetric
	ch <- c.torrentsMetric
	ch <- c.usersMetric
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.successfulMetric, prometheus.CounterValue, float64(c.successful.Load()))
	ch <- prometheus.MustNewConstMetric(c.failedMetric, prometheus.CounterValue, float64(c.failed.Load()))
	ch <- prometheus.MustNewConstMetric(c.blockedMetric, prometheus.CounterValue, float64(c.blocked.Load()))
	ch <- prometheus.MustNewConstMetric(c.swarmsMetric, prometheus.GaugeValue, float64(c.swarms()))
	ch <- prometheus.MustNewConstMetric(c.torrentsMetric, prometheus.GaugeValue, float64(c.torrents()))
	ch <- prometheus.MustNewConstMetric(c.usersMetric, prometheus.GaugeValue, float64(c.users()))
}
