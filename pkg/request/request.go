// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTemplate is used when a submission does not name a style.
	DefaultTemplate = "default"

	// MaxSubjectLength is the maximum subject length in characters after trimming.
	MaxSubjectLength = 100
	// MaxMessageLength is the maximum message length in characters after trimming.
	MaxMessageLength = 2000

	fingerprintMessagePrefix = 50
)

// Raw is the decoded JSON body of a send request before validation.
type Raw struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Template string `json:"template"`
}

// EmailRequest is a validated submission. Subject and Message are trimmed
// and HTML-escaped, To is a normalized address.
type EmailRequest struct {
	To       string
	Subject  string
	Message  string
	Template string
}

// Fingerprint identifies "the same submission" for duplicate suppression:
// recipient, subject and the first 50 characters of the message.
func (r EmailRequest) Fingerprint() string {
	return fmt.Sprintf("%s-%s-%s", r.To, r.Subject, truncateRunes(r.Message, fingerprintMessagePrefix))
}

// Domain returns the part of the recipient address after the last '@'.
func (r EmailRequest) Domain() string {
	return DomainOf(r.To)
}

// DomainOf returns the part of address after the last '@', or "" when the
// address has none.
func DomainOf(address string) string {
	i := strings.LastIndexByte(address, '@')
	if i < 0 {
		return ""
	}
	return address[i+1:]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
