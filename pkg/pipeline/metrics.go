package pipeline

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lswt/pkg/quality"
)

// Metrics are the Prometheus collectors of a Processor. Each Metrics owns
// its registry so several processors, and tests, do not collide on
// registration.
type Metrics struct {
	Registry *prometheus.Registry

	tiles        prometheus.Counter
	tileErrors   prometheus.Counter
	pixels       prometheus.Counter
	levels       *prometheus.CounterVec
	tileDuration prometheus.Histogram
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		tiles: f.NewCounter(prometheus.CounterOpts{
			Name: "lswt_tiles_processed_total",
			Help: "Tiles processed successfully",
		}),
		tileErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "lswt_tile_errors_total",
			Help: "Tiles that failed retrieval or quality checking",
		}),
		pixels: f.NewCounter(prometheus.CounterOpts{
			Name: "lswt_pixels_total",
			Help: "Pixels processed",
		}),
		levels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lswt_pixels_by_quality_level_total",
			Help: "Processed pixels by quality level",
		}, []string{"level"}),
		tileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lswt_tile_duration_seconds",
			Help:    "Wall time of retrieval and quality checking per tile",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *Metrics) observeTile(levels *quality.Levels, d time.Duration) {
	if m == nil {
		return
	}
	m.tiles.Inc()
	m.pixels.Add(float64(len(levels.Values)))
	m.tileDuration.Observe(d.Seconds())

	var counts [256]int
	for _, v := range levels.Values {
		counts[v]++
	}
	for lvl, n := range counts {
		if n > 0 {
			m.levels.WithLabelValues(strconv.Itoa(lvl)).Add(float64(n))
		}
	}
}

func (m *Metrics) observeError() {
	if m == nil {
		return
	}
	m.tileErrors.Inc()
}
