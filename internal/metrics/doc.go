// Package metrics exposes pipeline runs as Prometheus metrics.
//
// prodsum is a batch CLI, so metrics are written to a node-exporter textfile
// at the end of a run rather than served over HTTP.
package metrics
