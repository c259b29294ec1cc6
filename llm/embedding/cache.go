package embedding

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modelgrid_embedding_cache_hits_total",
		Help: "Embedding cache hits.",
	})
	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modelgrid_embedding_cache_misses_total",
		Help: "Embedding cache misses.",
	})
	batchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modelgrid_embedding_batch_failures_total",
		Help: "Embedding provider batch call failures.",
	})
)

func init() {
	prometheus.MustRegister(cacheHitsTotal, cacheMissesTotal, batchFailuresTotal)
}

// vectorCache is the TTL+LRU embedding cache, keyed by (modelID, text).
// Entries expire after the TTL and are evicted under LRU pressure.
type vectorCache struct {
	lru *expirable.LRU[string, []float64]
}

func newVectorCache(size int, ttl time.Duration) *vectorCache {
	return &vectorCache{
		lru: expirable.NewLRU[string, []float64](size, nil, ttl),
	}
}

func cacheKey(modelID, text string) string {
	return modelID + "\x00" + text
}

func (c *vectorCache) Get(modelID, text string) ([]float64, bool) {
	v, ok := c.lru.Get(cacheKey(modelID, text))
	if ok {
		cacheHitsTotal.Inc()
	} else {
		cacheMissesTotal.Inc()
	}
	return v, ok
}

func (c *vectorCache) Add(modelID, text string, vector []float64) {
	c.lru.Add(cacheKey(modelID, text), vector)
}

func (c *vectorCache) Len() int {
	return c.lru.Len()
}
