package balancer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/yanet-platform/flowlb/internal/controller"
	"github.com/yanet-platform/flowlb/internal/flow"
	"github.com/yanet-platform/flowlb/internal/metrics"
)

// FlowController installs and removes rules on a switch.
type FlowController interface {
	InstallFlow(ctx context.Context, node string, rule *flow.Rule) (controller.Outcome, error)
	DeleteFlow(ctx context.Context, node string, table uint8, id string) (controller.Outcome, error)
}

// State is the lifecycle state of a scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (m State) String() string {
	switch m {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(m))
	}
}

type schedulerOptions struct {
	Log     *zap.SugaredLogger
	Clock   clock.WithTicker
	Metrics *metrics.Metrics
}

func newSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		Log:   zap.NewNop().Sugar(),
		Clock: clock.RealClock{},
	}
}

// SchedulerOption is a function that configures a scheduler.
type SchedulerOption func(*schedulerOptions)

// WithLog sets the logger for the scheduler.
func WithLog(log *zap.SugaredLogger) SchedulerOption {
	return func(o *schedulerOptions) {
		o.Log = log
	}
}

// WithClock sets the clock driving the rotation period.
func WithClock(c clock.WithTicker) SchedulerOption {
	return func(o *schedulerOptions) {
		o.Clock = c
	}
}

// WithMetrics sets the collectors the scheduler reports to.
func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(o *schedulerOptions) {
		o.Metrics = m
	}
}

// Scheduler rotates the redirect rule of one virtual service across its
// backend pool.
//
// The scheduler is the only owner of its pool cursor and identity
// sequence, which are accessed from the Run goroutine only.
type Scheduler struct {
	service Service
	target  Target
	pool    *Pool
	builder *flow.Builder
	ids     *flow.IDs
	ctrl    FlowController

	clock   clock.WithTicker
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	state atomicState
	// lastRedirect is the identity of the last successfully installed
	// redirect rule, used by the delete handoff.
	lastRedirect string
}

// NewScheduler creates an idle scheduler for the service.
func NewScheduler(
	service Service,
	target Target,
	ctrl FlowController,
	options ...SchedulerOption,
) (*Scheduler, error) {
	opts := newSchedulerOptions()
	for _, o := range options {
		o(opts)
	}

	pool, err := NewPool(service.Backends)
	if err != nil {
		return nil, fmt.Errorf("service %q: %w", service.Name, err)
	}
	if service.IdleTimeout == 0 {
		return nil, fmt.Errorf("service %q: idle timeout must be positive", service.Name)
	}
	if service.Handoff == "" {
		service.Handoff = HandoffReplace
	}

	return &Scheduler{
		service: service,
		target:  target,
		pool:    pool,
		builder: flow.NewBuilder(target.Table, service.IdleTimeout),
		ids:     flow.NewIDs(service.Name),
		ctrl:    ctrl,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		log: opts.Log.Named("scheduler").With(
			zap.String("service", service.Name),
			zap.Stringer("vip", service.Address),
		),
	}, nil
}

// Name returns the name of the balanced service.
func (m *Scheduler) Name() string {
	return m.service.Name
}

// State returns the current lifecycle state.
func (m *Scheduler) State() State {
	return m.state.Load()
}

// Period returns the time between two rotations.
func (m *Scheduler) Period() time.Duration {
	return time.Duration(m.service.IdleTimeout) * time.Second
}

// ARPRule returns the ARP-passthrough rule of the service.
func (m *Scheduler) ARPRule() *flow.Rule {
	return m.builder.ARPPassthrough(m.ids.ARP(), m.service.Address)
}

// Run rotates immediately and then once per period until the context is
// canceled. Install failures do not stop the rotation.
//
// Run may be called only once.
func (m *Scheduler) Run(ctx context.Context) error {
	if !m.state.CompareAndSwap(StateIdle, StateRunning) {
		return fmt.Errorf("service %q: scheduler is %s", m.service.Name, m.State())
	}
	defer m.state.Store(StateStopped)

	m.log.Infow("running scheduler",
		zap.Duration("period", m.Period()),
		zap.String("handoff", string(m.service.Handoff)),
		zap.Int("backends", m.pool.Len()),
	)
	defer m.log.Info("stopped scheduler")

	ticker := m.clock.NewTicker(m.Period())
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Failures are already logged and counted.
		_, _ = m.Rotate(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

// Rotate runs a single rotation cycle: it selects the next backend and
// installs a redirect rule towards it. The cursor advances even when the
// install fails.
func (m *Scheduler) Rotate(ctx context.Context) (flow.Backend, error) {
	backend := m.pool.Next()

	m.log.Infow("redirecting traffic",
		zap.Stringer("source", m.service.Source),
		zap.Stringer("backend", backend),
	)
	m.metrics.Rotated(m.service.Name, backend.String())

	id := m.nextRedirectID()
	rule := m.builder.Redirect(id, m.service.Source, m.service.Address, backend)

	if m.service.Handoff == HandoffDelete && m.lastRedirect != "" {
		m.deletePrevious(ctx)
	}

	outcome, err := m.ctrl.InstallFlow(ctx, m.target.Node, rule)
	m.metrics.FlowInstalled(m.service.Name, metrics.KindRedirect, err)
	if err != nil {
		m.log.Errorw("failed to install redirect flow",
			zap.String("flow", id),
			zap.Stringer("backend", backend),
			zap.Error(err),
		)
		return backend, fmt.Errorf("failed to install redirect flow %q: %w", id, err)
	}

	m.lastRedirect = id
	m.log.Infow("installed redirect flow",
		zap.String("flow", id),
		zap.Stringer("backend", backend),
		zap.Stringer("outcome", outcome),
	)
	return backend, nil
}

func (m *Scheduler) nextRedirectID() string {
	if m.service.Handoff == HandoffReplace {
		return m.ids.Redirect()
	}
	return m.ids.NextRedirect()
}

// deletePrevious removes the last installed redirect rule. A failure is
// not fatal: the rule still expires by its idle timeout.
func (m *Scheduler) deletePrevious(ctx context.Context) {
	id := m.lastRedirect
	m.lastRedirect = ""

	outcome, err := m.ctrl.DeleteFlow(ctx, m.target.Node, m.target.Table, id)
	m.metrics.FlowDeleted(m.service.Name, err)
	if err != nil {
		m.log.Warnw("failed to delete previous redirect flow", zap.String("flow", id), zap.Error(err))
		return
	}
	m.log.Debugw("deleted previous redirect flow", zap.String("flow", id), zap.Stringer("outcome", outcome))
}

type atomicState struct {
	v atomic.Int32
}

func (m *atomicState) Load() State {
	return State(m.v.Load())
}

func (m *atomicState) Store(s State) {
	m.v.Store(int32(s))
}

func (m *atomicState) CompareAndSwap(old State, new State) bool {
	return m.v.CompareAndSwap(int32(old), int32(new))
}
