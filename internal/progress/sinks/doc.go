// Package sinks implements progress consumers: a structured log sink and a
// Prometheus sink that can dump its registry to a textfile on Close.
package sinks
