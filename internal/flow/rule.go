package flow

import (
	"net"
	"net/netip"

	"github.com/gopacket/gopacket/layers"
)

// Priorities of the rules installed by the balancer.
//
// ARP-passthrough must always win over a redirect rule, otherwise address
// resolution for the virtual address would be rewritten towards a backend.
const (
	PriorityARP      uint16 = 1000
	PriorityRedirect uint16 = 100
)

// PortNormal is the reserved output port that hands packets to the
// switch's normal L2/L3 pipeline.
const PortNormal = "NORMAL"

// Rule is a match-action rule installed into a switch table.
type Rule struct {
	// ID identifies the rule within its switch table. Installing a rule
	// with an ID that already exists replaces it.
	ID string
	// Table is the OpenFlow table the rule lives in.
	Table uint8
	// Priority orders rule evaluation, higher first.
	Priority uint16
	// IdleTimeout is the inactivity period in seconds after which the
	// switch removes the rule. Zero disables it.
	IdleTimeout uint16
	// HardTimeout is the absolute lifetime in seconds. Zero disables it.
	HardTimeout uint16
	Match       Match
	Actions     []OrderedAction
}

// Match is the packet predicate of a rule. Zero-valued fields are
// wildcards.
type Match struct {
	EthType   layers.EthernetType
	EthDst    net.HardwareAddr
	ARPTarget netip.Prefix
	IPv4Src   netip.Prefix
	IPv4Dst   netip.Prefix
}

// OrderedAction is an action tagged with its position in the apply list.
type OrderedAction struct {
	Order  int
	Action Action
}

// Action is one of SetEthDst, SetIPv4Dst or Output.
type Action interface {
	action()
}

// SetEthDst rewrites the destination MAC address.
type SetEthDst struct {
	MAC net.HardwareAddr
}

// SetIPv4Dst rewrites the destination IPv4 address.
type SetIPv4Dst struct {
	Address netip.Prefix
}

// Output forwards the packet to a port.
type Output struct {
	Port string
}

func (SetEthDst) action()  {}
func (SetIPv4Dst) action() {}
func (Output) action()     {}
