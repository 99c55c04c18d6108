// Package metrics serves a Prometheus text exposition of hub and process
// statistics at /metrics.
//
// Families are built by hand as client_model protobufs from hub.Stats and
// encoded with prometheus/common/expfmt in whatever format the scraper
// negotiates. Process figures (RSS, CPU seconds, open fds) come from gopsutil
// and are omitted when the platform cannot provide them.
package metrics
