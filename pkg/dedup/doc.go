// Package dedup provides the time-bounded fingerprint cache that suppresses
// repeated submissions of the same content to the same recipient, together
// with the background reaper that evicts expired fingerprints.
package dedup
