// Package mail renders NekoMail messages from embedded HTML styles and hands
// them to an SMTP relay through a single pooled connection.
package mail
