package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the link engine. They register on the default registry,
// which NewServer exposes under /metrics.
var (
	LinksCreated = promauto.NewCounter(prom.CounterOpts{
		Name: "landmower_links_created_total",
		Help: "Short links created since start.",
	})

	LinksDeleted = promauto.NewCounter(prom.CounterOpts{
		Name: "landmower_links_deleted_total",
		Help: "Short links deleted since start.",
	})

	LinksLive = promauto.NewGauge(prom.GaugeOpts{
		Name: "landmower_links_live",
		Help: "Short links currently stored.",
	})

	ResolvesTotal = promauto.NewCounterVec(prom.CounterOpts{
		Name: "landmower_resolves_total",
		Help: "Redirect lookups by outcome.",
	}, []string{"outcome"})
)
