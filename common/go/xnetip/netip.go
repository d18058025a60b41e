package xnetip

import (
	"fmt"
	"net/netip"
)

// ParsePrefix4 parses an IPv4 prefix in CIDR notation. A bare address is
// treated as a host prefix.
func ParsePrefix4(s string) (netip.Prefix, error) {
	var prefix netip.Prefix
	if addr, err := netip.ParseAddr(s); err == nil {
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	} else if prefix, err = netip.ParsePrefix(s); err != nil {
		return netip.Prefix{}, fmt.Errorf("malformed address %q", s)
	}

	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("not an IPv4 address %q", s)
	}
	return prefix, nil
}

// ParseHost4 parses a single IPv4 host, either a bare address or a /32
// prefix.
func ParseHost4(s string) (netip.Prefix, error) {
	prefix, err := ParsePrefix4(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	if !prefix.IsSingleIP() {
		return netip.Prefix{}, fmt.Errorf("not a host address %q", s)
	}
	return prefix, nil
}

// ParseNetwork4 parses an IPv4 network, rejecting prefixes with host bits
// set.
func ParseNetwork4(s string) (netip.Prefix, error) {
	prefix, err := ParsePrefix4(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	if prefix != prefix.Masked() {
		return netip.Prefix{}, fmt.Errorf("host bits set in %q, expected %q", s, prefix.Masked())
	}
	return prefix, nil
}
