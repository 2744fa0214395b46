package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fediwatch/crawler/internal/metrics"
)

// Metrics serves the crawl's Prometheus registry.
func Metrics() http.Handler {
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}
