package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Feed pipeline metrics: harvester pages, ingested items, waiter registry
// activity and the size of the bookable index.
var (
	harvestPagesTotal *prometheus.CounterVec
	feedItemsTotal    *prometheus.CounterVec
	waiterEventsTotal *prometheus.CounterVec
	bookableIndexSize *prometheus.GaugeVec
	feedMetricsOnce   sync.Once
)

func initializeFeedMetrics() {
	feedMetricsOnce.Do(func() {
		harvestPagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_pages_total",
				Help: "Total number of feed pages fetched",
			},
			[]string{"feed", "status"}, // "success", "error", "retired", "violation"
		)

		feedItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feed_items_total",
				Help: "Total number of feed items delivered to ingestion",
			},
			[]string{"feed"},
		)

		waiterEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waiter_events_total",
				Help: "Total number of waiter registry events",
			},
			[]string{"registry", "event"}, // "registered", "fulfilled", "superseded", "released"
		)

		bookableIndexSize = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bookable_index_size",
				Help: "Number of ids currently held bookable, per type",
			},
			[]string{"type"},
		)

		GetInstance().registry.MustRegister(
			harvestPagesTotal,
			feedItemsTotal,
			waiterEventsTotal,
			bookableIndexSize,
		)
	})
}

// RecordHarvestPage records the outcome of one page fetch.
func RecordHarvestPage(feed, status string) {
	if !businessMetricsEnabled() {
		return
	}
	initializeFeedMetrics()
	harvestPagesTotal.WithLabelValues(feed, status).Inc()
}

// RecordFeedItems records items delivered to an ingestion handler.
func RecordFeedItems(feed string, count int) {
	if !businessMetricsEnabled() {
		return
	}
	initializeFeedMetrics()
	feedItemsTotal.WithLabelValues(feed).Add(float64(count))
}

// RecordWaiter records a waiter registry event.
func RecordWaiter(registry, event string) {
	if !businessMetricsEnabled() {
		return
	}
	initializeFeedMetrics()
	waiterEventsTotal.WithLabelValues(registry, event).Inc()
}

// SetBookableIndexSize records the current size of a type's bookable set.
func SetBookableIndexSize(opportunityType string, size int) {
	if !businessMetricsEnabled() {
		return
	}
	initializeFeedMetrics()
	bookableIndexSize.WithLabelValues(opportunityType).Set(float64(size))
}
