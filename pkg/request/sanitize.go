// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"strings"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#x27;",
	"<", "&lt;",
	">", "&gt;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

// EscapeHTML replaces the characters that are unsafe to interpolate into
// HTML element content or attribute values with entities.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// providers whose mailbox names ignore "+tag" suffixes
var subaddressDomains = map[string]bool{
	"gmail.com":   true,
	"outlook.com": true,
	"hotmail.com": true,
	"live.com":    true,
	"icloud.com":  true,
	"me.com":      true,
}

// NormalizeEmail lower-cases the address and canonicalizes well-known
// provider aliases: googlemail.com becomes gmail.com, dots are dropped from
// Gmail local parts, and "+tag" subaddresses are removed for providers that
// ignore them. Yahoo uses '-' as its subaddress separator.
func NormalizeEmail(address string) string {
	address = strings.ToLower(address)
	at := strings.LastIndexByte(address, '@')
	if at <= 0 {
		return address
	}
	local, domain := address[:at], address[at+1:]

	if domain == "googlemail.com" {
		domain = "gmail.com"
	}
	if subaddressDomains[domain] {
		local, _, _ = strings.Cut(local, "+")
	}
	if domain == "yahoo.com" {
		// only the last "-" segment is the subaddress
		if i := strings.LastIndexByte(local, '-'); i >= 0 {
			local = local[:i]
		}
	}
	if domain == "gmail.com" {
		local = strings.ReplaceAll(local, ".", "")
	}
	if local == "" {
		return address
	}
	return local + "@" + domain
}
