package balancer

import (
	"fmt"
	"net/netip"

	"github.com/yanet-platform/flowlb/internal/flow"
)

// Handoff selects how a new redirect rule takes over from the previous
// one.
type Handoff string

const (
	// HandoffReplace installs every redirect rule under the same identity,
	// so each install overwrites the previous rule.
	HandoffReplace Handoff = "replace"
	// HandoffDelete installs every redirect rule under a fresh identity and
	// deletes the previous one first.
	HandoffDelete Handoff = "delete"
	// HandoffExpire installs every redirect rule under a fresh identity and
	// leaves the previous one to the switch idle timeout. Around the
	// handoff there may briefly be two redirect rules or none.
	HandoffExpire Handoff = "expire"
)

// UnmarshalText is a part of [encoding.TextUnmarshaler]
func (m *Handoff) UnmarshalText(text []byte) error {
	switch handoff := Handoff(text); handoff {
	case HandoffReplace, HandoffDelete, HandoffExpire:
		*m = handoff
		return nil
	}
	return fmt.Errorf("unknown handoff %q", text)
}

// Service is a validated virtual service.
type Service struct {
	// Name scopes flow identities, it must be unique per switch table.
	Name string
	// Address is the virtual address clients target.
	Address netip.Prefix
	// Source filters the clients whose traffic is redirected.
	Source netip.Prefix
	// IdleTimeout is both the rules idle timeout and the rotation period,
	// in seconds.
	IdleTimeout uint16
	Handoff     Handoff
	Backends    []flow.Backend
}

// Target is the switch table the balancer manages.
type Target struct {
	// Node is the controller's identifier of the switch, e.g. "openflow:1".
	Node  string
	Table uint8
}
