// Package policy holds the recipient deny list consulted before a message is
// handed to the relay.
package policy
