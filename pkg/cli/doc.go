// Package cli builds the nekomail command tree: the HTTP server, a client
// for the send endpoint, template previews and build information.
package cli
