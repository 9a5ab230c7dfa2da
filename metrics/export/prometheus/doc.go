// Package prometheus serves inkauth engine metrics in the Prometheus text
// exposition format without depending on a Prometheus client registry.
//
// Counter names follow inkauth_*_total; the request gate latency histogram
// is inkauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register collectors in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
