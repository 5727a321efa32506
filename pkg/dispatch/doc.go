// Package dispatch hands rendered messages to the relay and bounds how long
// a caller waits for the result.
package dispatch
