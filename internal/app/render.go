package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gobwas/glob"

	"github.com/yanet-platform/flowlb/internal/balancer"
	"github.com/yanet-platform/flowlb/internal/controller"
	"github.com/yanet-platform/flowlb/internal/flow"
)

// RenderOptions controls Render.
type RenderOptions struct {
	// Cycles is the number of rotations rendered per service.
	Cycles int
	// Filter selects flows by identity, nil selects all.
	Filter glob.Glob
}

// Render writes the requests the balancer would send to the controller:
// the ARP-passthrough rule of every service followed by the first
// rotations, without contacting the controller.
func Render(cfg *Config, opts RenderOptions, w io.Writer) error {
	services, err := cfg.BalancerServices()
	if err != nil {
		return err
	}

	target := cfg.Target()
	rec := &recorder{
		filter: opts.Filter,
		w:      w,
	}

	ctx := context.Background()
	for _, svc := range services {
		s, err := balancer.NewScheduler(svc, target, rec)
		if err != nil {
			return err
		}

		if _, err := rec.InstallFlow(ctx, target.Node, s.ARPRule()); err != nil {
			return err
		}
		for range opts.Cycles {
			if _, err := s.Rotate(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// recorder is a FlowController that prints requests instead of sending
// them.
type recorder struct {
	filter glob.Glob
	w      io.Writer
}

func (m *recorder) InstallFlow(_ context.Context, node string, rule *flow.Rule) (controller.Outcome, error) {
	if !m.selected(rule.ID) {
		return controller.OutcomeCreated, nil
	}

	data, err := controller.EncodeFlow(rule)
	if err != nil {
		return 0, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return 0, err
	}

	if _, err := fmt.Fprintf(m.w, "# PUT %s table %d flow %s\n%s\n", node, rule.Table, rule.ID, out.String()); err != nil {
		return 0, err
	}
	return controller.OutcomeCreated, nil
}

func (m *recorder) DeleteFlow(_ context.Context, node string, table uint8, id string) (controller.Outcome, error) {
	if !m.selected(id) {
		return controller.OutcomeRemoved, nil
	}

	if _, err := fmt.Fprintf(m.w, "# DELETE %s table %d flow %s\n", node, table, id); err != nil {
		return 0, err
	}
	return controller.OutcomeRemoved, nil
}

func (m *recorder) selected(id string) bool {
	return m.filter == nil || m.filter.Match(id)
}
