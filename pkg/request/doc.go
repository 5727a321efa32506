// Package request validates and normalizes incoming send-email submissions
// and derives the fingerprint used for duplicate suppression.
package request
