// Package api implements the public HTTP surface (Gin-based): the send
// endpoint with its admission chain, the index and health routes, metrics,
// and the embedded static assets.
package api
