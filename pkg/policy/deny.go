// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"

	"github.com/telekom/nekomail/pkg/request"
)

// DefaultBlockedDomains are always denied, regardless of configuration.
var DefaultBlockedDomains = []string{"example.com", "test.com"}

// BlockedDomainError is returned when a recipient domain is on the deny list.
type BlockedDomainError struct {
	Domain string
}

func (e *BlockedDomainError) Error() string {
	return fmt.Sprintf("recipient domain %q is not allowed", e.Domain)
}

// DomainBlocklist rejects recipients whose domain exactly matches an entry.
// It is immutable after construction and safe for concurrent use.
type DomainBlocklist struct {
	domains map[string]struct{}
}

// NewDomainBlocklist builds a deny list from DefaultBlockedDomains plus extra.
// Entries are compared case-insensitively.
func NewDomainBlocklist(extra ...string) *DomainBlocklist {
	b := &DomainBlocklist{domains: make(map[string]struct{}, len(DefaultBlockedDomains)+len(extra))}
	for _, d := range DefaultBlockedDomains {
		b.domains[d] = struct{}{}
	}
	for _, d := range extra {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			b.domains[d] = struct{}{}
		}
	}
	return b
}

// Check returns a *BlockedDomainError if the domain of address is denied.
func (b *DomainBlocklist) Check(address string) error {
	domain := strings.ToLower(request.DomainOf(address))
	if _, denied := b.domains[domain]; denied {
		return &BlockedDomainError{Domain: domain}
	}
	return nil
}

// Len returns the number of denied domains.
func (b *DomainBlocklist) Len() int {
	return len(b.domains)
}
