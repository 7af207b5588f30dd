// ABOUTME: Metrics package
// ABOUTME: Prometheus collectors and the scrape endpoint
// Package metrics exposes Prometheus instrumentation for the engine
package metrics
