package xnetip

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrefix4(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected netip.Prefix
	}{
		{
			name:     "host prefix",
			input:    "10.0.0.2/32",
			expected: netip.MustParsePrefix("10.0.0.2/32"),
		},
		{
			name:     "bare address",
			input:    "10.0.0.2",
			expected: netip.MustParsePrefix("10.0.0.2/32"),
		},
		{
			name:     "network",
			input:    "10.0.0.0/24",
			expected: netip.MustParsePrefix("10.0.0.0/24"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, err := ParsePrefix4(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, prefix)
		})
	}
}

func TestParsePrefix4Errors(t *testing.T) {
	tests := []struct {
		input string
		err   string
	}{
		{input: "", err: "malformed address"},
		{input: "10.0.0.256/32", err: "malformed address"},
		{input: "10.0.0.0/33", err: "malformed address"},
		{input: "fd00::1", err: "not an IPv4 address"},
		{input: "fd00::/64", err: "not an IPv4 address"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParsePrefix4(tt.input)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestParseHost4(t *testing.T) {
	prefix, err := ParseHost4("10.0.0.100")
	require.NoError(t, err)
	require.Equal(t, netip.MustParsePrefix("10.0.0.100/32"), prefix)

	prefix, err = ParseHost4("10.0.0.100/32")
	require.NoError(t, err)
	require.Equal(t, netip.MustParsePrefix("10.0.0.100/32"), prefix)

	for _, input := range []string{"10.0.0.100/24", "10.0.0.0/24", "0.0.0.0/0"} {
		_, err := ParseHost4(input)
		require.Error(t, err, input)
		require.Contains(t, err.Error(), "not a host address")
	}

	_, err = ParseHost4("fd00::1")
	require.ErrorContains(t, err, "not an IPv4 address")
}

func TestParseNetwork4(t *testing.T) {
	for _, input := range []string{"10.0.0.0/24", "10.0.0.5/32", "10.0.0.5", "0.0.0.0/0"} {
		_, err := ParseNetwork4(input)
		require.NoError(t, err, input)
	}

	_, err := ParseNetwork4("10.0.0.5/24")
	require.ErrorContains(t, err, `host bits set in "10.0.0.5/24", expected "10.0.0.0/24"`)
}
