// Package metrics wires the dualstream core's Observer hook to
// Prometheus, grounded on the registry/collector pattern the
// retrieved video-serving stack uses for its own exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gocapture/dualstream"
)

// Collector implements dualstream.Observer over a dedicated
// Prometheus registry. The zero value is not usable; construct with
// New.
type Collector struct {
	registry *prometheus.Registry

	dmaCompletions *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	dequeueWait    *prometheus.HistogramVec
	stillCaptures  *prometheus.CounterVec
}

// New registers the dualstream metric family on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		dmaCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualstream",
			Name:      "dma_completions_total",
			Help:      "Count of DMA completions delivered to NotifyPath, by stream and outcome.",
		}, []string{"stream", "result"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dualstream",
			Name:      "queue_depth",
			Help:      "Current size of each buffer sub-list, by stream and sub-list.",
		}, []string{"stream", "sublist"}),
		dequeueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dualstream",
			Name:      "dequeue_wait_seconds",
			Help:      "Observed wall-clock time spent blocked in Dequeue, by stream.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stream"}),
		stillCaptures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dualstream",
			Name:      "still_captures_total",
			Help:      "Count of take_picture_start bursts initiated.",
		}, []string{"stream"}),
	}

	reg.MustRegister(c.dmaCompletions, c.queueDepth, c.dequeueWait, c.stillCaptures)
	return c
}

// Handler returns the HTTP handler serving this collector's registry
// in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, e.g. to add Go/process
// collectors alongside it.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// DMACompletion implements dualstream.Observer.
func (c *Collector) DMACompletion(stream dualstream.Stream, isErr bool) {
	result := "ok"
	if isErr {
		result = "error"
	}
	c.dmaCompletions.WithLabelValues(stream.String(), result).Inc()
}

// QueueDepth implements dualstream.Observer.
func (c *Collector) QueueDepth(stream dualstream.Stream, free, queued, dma, done int) {
	s := stream.String()
	c.queueDepth.WithLabelValues(s, "free").Set(float64(free))
	c.queueDepth.WithLabelValues(s, "queued").Set(float64(queued))
	c.queueDepth.WithLabelValues(s, "dma").Set(float64(dma))
	c.queueDepth.WithLabelValues(s, "done").Set(float64(done))
}

// DequeueWaitSeconds implements dualstream.Observer.
func (c *Collector) DequeueWaitSeconds(stream dualstream.Stream, seconds float64) {
	c.dequeueWait.WithLabelValues(stream.String()).Observe(seconds)
}

// StillCapture implements dualstream.Observer.
func (c *Collector) StillCapture(stream dualstream.Stream) {
	c.stillCaptures.WithLabelValues(stream.String()).Inc()
}
