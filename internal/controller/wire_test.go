package controller

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/flowlb/internal/flow"
)

func TestEncodeARPPassthrough(t *testing.T) {
	rule := flow.NewBuilder(0, 10).ARPPassthrough("flowlb-web-arp", netip.MustParsePrefix("10.0.0.100/32"))

	data, err := EncodeFlow(rule)
	require.NoError(t, err)
	require.JSONEq(t, `{"flow":[{
		"id": "flowlb-web-arp",
		"match": {
			"ethernet-match": {
				"ethernet-type": {"type": "0x0806"},
				"ethernet-destination": {"address": "ff:ff:ff:ff:ff:ff"}
			},
			"arp-target-transport-address": "10.0.0.100/32"
		},
		"instructions": {"instruction": [{
			"order": 0,
			"apply-actions": {"action": [
				{"order": 0, "output-action": {"output-node-connector": "NORMAL"}}
			]}
		}]},
		"priority": 1000,
		"idle-timeout": 10,
		"hard-timeout": 0,
		"table_id": 0
	}]}`, string(data))
}

func TestEncodeWildcardMatch(t *testing.T) {
	rule := &flow.Rule{
		ID:      "any",
		Actions: []flow.OrderedAction{{Order: 0, Action: flow.Output{Port: "1"}}},
	}

	data, err := EncodeFlow(rule)
	require.NoError(t, err)
	require.Contains(t, string(data), `"match":{}`)
}

type unknownAction struct{ flow.Output }

func TestEncodeUnsupportedAction(t *testing.T) {
	rule := &flow.Rule{
		ID:      "bad",
		Actions: []flow.OrderedAction{{Order: 0, Action: unknownAction{}}},
	}

	_, err := EncodeFlow(rule)
	require.Error(t, err)
	require.Contains(t, err.Error(), `flow "bad"`)
}
