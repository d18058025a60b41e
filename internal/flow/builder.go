package flow

import (
	"net"
	"net/netip"
	"slices"

	"github.com/gopacket/gopacket/layers"
)

// Backend is a real server the virtual address is redirected to.
type Backend struct {
	Address netip.Prefix
	MAC     net.HardwareAddr
}

func (b Backend) String() string {
	return b.Address.String()
}

// Builder constructs the rules of a single virtual service.
//
// It holds no state besides its configuration and is safe to share.
type Builder struct {
	table       uint8
	idleTimeout uint16
}

// NewBuilder creates a builder producing rules for the given table that
// expire after idleTimeout seconds of inactivity.
func NewBuilder(table uint8, idleTimeout uint16) *Builder {
	return &Builder{
		table:       table,
		idleTimeout: idleTimeout,
	}
}

// ARPPassthrough builds the rule that lets broadcast ARP requests for the
// virtual address through the normal pipeline.
func (m *Builder) ARPPassthrough(id string, vip netip.Prefix) *Rule {
	return &Rule{
		ID:          id,
		Table:       m.table,
		Priority:    PriorityARP,
		IdleTimeout: m.idleTimeout,
		Match: Match{
			EthType:   layers.EthernetTypeARP,
			EthDst:    slices.Clone(layers.EthernetBroadcast),
			ARPTarget: vip,
		},
		Actions: []OrderedAction{
			{Order: 0, Action: Output{Port: PortNormal}},
		},
	}
}

// Redirect builds the rule that rewrites IPv4 traffic from source to the
// virtual address towards the given backend.
func (m *Builder) Redirect(id string, source netip.Prefix, vip netip.Prefix, backend Backend) *Rule {
	return &Rule{
		ID:          id,
		Table:       m.table,
		Priority:    PriorityRedirect,
		IdleTimeout: m.idleTimeout,
		Match: Match{
			EthType: layers.EthernetTypeIPv4,
			IPv4Src: source,
			IPv4Dst: vip,
		},
		Actions: []OrderedAction{
			{Order: 0, Action: SetEthDst{MAC: slices.Clone(backend.MAC)}},
			{Order: 1, Action: SetIPv4Dst{Address: backend.Address}},
			{Order: 2, Action: Output{Port: PortNormal}},
		},
	}
}
