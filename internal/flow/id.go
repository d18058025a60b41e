package flow

import (
	"strconv"
)

const idPrefix = "flowlb"

// IDs hands out rule identities for one virtual service.
//
// Identities embed the service name, so two services with distinct names
// never collide on the same table. Not safe for concurrent use: each
// scheduler owns its own instance.
type IDs struct {
	service string
	seq     uint64
}

// NewIDs creates the identity source of the named service.
func NewIDs(service string) *IDs {
	return &IDs{service: service}
}

// ARP returns the identity of the ARP-passthrough rule.
func (m *IDs) ARP() string {
	return idPrefix + "-" + m.service + "-arp"
}

// Redirect returns the stable identity of the redirect rule. Installing
// under it replaces whatever redirect rule was there before.
func (m *IDs) Redirect() string {
	return idPrefix + "-" + m.service + "-redirect"
}

// NextRedirect returns a fresh redirect identity, distinct from every
// identity previously returned by this instance.
func (m *IDs) NextRedirect() string {
	m.seq++
	return m.Redirect() + "-" + strconv.FormatUint(m.seq, 10)
}
