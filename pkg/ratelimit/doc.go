// Package ratelimit provides the admission-control middleware for Gin: a
// per-IP token bucket for every route, a hard per-client cap on accepted
// submissions within a rolling window, and a progressive slowdown that
// delays clients once they exceed a soft threshold in the same window.
package ratelimit
