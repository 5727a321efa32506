// Package metrics defines the Prometheus counters, gauges and histograms
// exported by nekomail for admission control, deduplication and mail
// delivery, and the HTTP handler that exposes them.
package metrics
