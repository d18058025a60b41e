package controller

import (
	"encoding/json"
	"fmt"

	"github.com/yanet-platform/flowlb/internal/flow"
)

// Wire representation of opendaylight-inventory flows. Field names follow
// the RESTCONF JSON encoding of the flow-node-inventory YANG model.

type flowsBody struct {
	Flow []flowBody `json:"flow"`
}

type flowBody struct {
	ID           string           `json:"id"`
	Match        matchBody        `json:"match"`
	Instructions instructionsBody `json:"instructions"`
	Priority     uint16           `json:"priority"`
	IdleTimeout  uint16           `json:"idle-timeout"`
	HardTimeout  uint16           `json:"hard-timeout"`
	TableID      uint8            `json:"table_id"`
}

type matchBody struct {
	EthernetMatch *ethernetMatchBody `json:"ethernet-match,omitempty"`
	ARPTarget     string             `json:"arp-target-transport-address,omitempty"`
	IPv4Source    string             `json:"ipv4-source,omitempty"`
	IPv4Dest      string             `json:"ipv4-destination,omitempty"`
}

type ethernetMatchBody struct {
	EthernetType *ethernetTypeBody `json:"ethernet-type,omitempty"`
	EthernetDest *addressBody      `json:"ethernet-destination,omitempty"`
}

type ethernetTypeBody struct {
	Type string `json:"type"`
}

type addressBody struct {
	Address string `json:"address"`
}

type instructionsBody struct {
	Instruction []instructionBody `json:"instruction"`
}

type instructionBody struct {
	Order        int              `json:"order"`
	ApplyActions applyActionsBody `json:"apply-actions"`
}

type applyActionsBody struct {
	Action []actionBody `json:"action"`
}

type actionBody struct {
	Order     int              `json:"order"`
	SetDlDst  *addressBody     `json:"set-dl-dst-action,omitempty"`
	SetNwDst  *ipv4AddressBody `json:"set-nw-dst-action,omitempty"`
	OutputAct *outputBody      `json:"output-action,omitempty"`
}

type ipv4AddressBody struct {
	Address string `json:"ipv4-address"`
}

type outputBody struct {
	Connector string `json:"output-node-connector"`
}

// EncodeFlow renders the rule as the body of a RESTCONF flow PUT.
func EncodeFlow(rule *flow.Rule) ([]byte, error) {
	body, err := convertRule(rule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(flowsBody{Flow: []flowBody{body}})
}

func convertRule(rule *flow.Rule) (flowBody, error) {
	actions := make([]actionBody, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		action, err := convertAction(a)
		if err != nil {
			return flowBody{}, fmt.Errorf("flow %q: %w", rule.ID, err)
		}
		actions = append(actions, action)
	}

	return flowBody{
		ID:    rule.ID,
		Match: convertMatch(&rule.Match),
		Instructions: instructionsBody{
			Instruction: []instructionBody{
				{
					Order:        0,
					ApplyActions: applyActionsBody{Action: actions},
				},
			},
		},
		Priority:    rule.Priority,
		IdleTimeout: rule.IdleTimeout,
		HardTimeout: rule.HardTimeout,
		TableID:     rule.Table,
	}, nil
}

func convertMatch(m *flow.Match) matchBody {
	out := matchBody{}

	if m.EthType != 0 || len(m.EthDst) != 0 {
		out.EthernetMatch = &ethernetMatchBody{}
		if m.EthType != 0 {
			out.EthernetMatch.EthernetType = &ethernetTypeBody{
				Type: fmt.Sprintf("0x%04x", uint16(m.EthType)),
			}
		}
		if len(m.EthDst) != 0 {
			out.EthernetMatch.EthernetDest = &addressBody{Address: m.EthDst.String()}
		}
	}
	if m.ARPTarget.IsValid() {
		out.ARPTarget = m.ARPTarget.String()
	}
	if m.IPv4Src.IsValid() {
		out.IPv4Source = m.IPv4Src.String()
	}
	if m.IPv4Dst.IsValid() {
		out.IPv4Dest = m.IPv4Dst.String()
	}

	return out
}

func convertAction(a flow.OrderedAction) (actionBody, error) {
	out := actionBody{Order: a.Order}

	switch action := a.Action.(type) {
	case flow.SetEthDst:
		out.SetDlDst = &addressBody{Address: action.MAC.String()}
	case flow.SetIPv4Dst:
		out.SetNwDst = &ipv4AddressBody{Address: action.Address.String()}
	case flow.Output:
		out.OutputAct = &outputBody{Connector: action.Port}
	default:
		return actionBody{}, fmt.Errorf("unsupported action %T", a.Action)
	}

	return out, nil
}
