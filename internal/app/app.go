package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/yanet-platform/flowlb/internal/balancer"
	"github.com/yanet-platform/flowlb/internal/controller"
	"github.com/yanet-platform/flowlb/internal/metrics"
)

type options struct {
	Log   *zap.SugaredLogger
	Clock clock.WithTicker
}

func newOptions() *options {
	return &options{
		Log:   zap.NewNop().Sugar(),
		Clock: clock.RealClock{},
	}
}

// AppOption is a function that configures the application.
type AppOption func(*options)

// WithLog sets the logger for the application.
func WithLog(log *zap.SugaredLogger) AppOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithClock sets the clock driving the rotation of every service.
func WithClock(c clock.WithTicker) AppOption {
	return func(o *options) {
		o.Clock = c
	}
}

// App wires the controller client, one scheduler per virtual service and
// the metrics server.
type App struct {
	cfg        *Config
	target     balancer.Target
	client     *controller.Client
	schedulers []*balancer.Scheduler
	metrics    *metrics.Metrics
	log        *zap.SugaredLogger
}

// New creates the application from a validated configuration.
func New(cfg *Config, options ...AppOption) (*App, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	log := opts.Log

	services, err := cfg.BalancerServices()
	if err != nil {
		return nil, err
	}

	client, err := controller.New(cfg.Controller, controller.WithLog(log))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize controller client: %w", err)
	}

	m := metrics.New()
	target := cfg.Target()

	schedulers := make([]*balancer.Scheduler, 0, len(services))
	for _, svc := range services {
		s, err := balancer.NewScheduler(svc, target, client,
			balancer.WithLog(log),
			balancer.WithClock(opts.Clock),
			balancer.WithMetrics(m),
		)
		if err != nil {
			return nil, err
		}
		schedulers = append(schedulers, s)
	}

	return &App{
		cfg:        cfg,
		target:     target,
		client:     client,
		schedulers: schedulers,
		metrics:    m,
		log:        log,
	}, nil
}

// Run clears the switch table, installs the ARP-passthrough rules and
// rotates every service until the context is canceled.
//
// Cancellation is a clean stop and returns nil, including when it
// interrupts the startup requests.
func (a *App) Run(ctx context.Context) error {
	if err := a.run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (a *App) run(ctx context.Context) error {
	a.log.Infow("running balancer",
		zap.String("node", a.target.Node),
		zap.Uint8("table", a.target.Table),
		zap.Int("services", len(a.schedulers)),
	)
	defer a.log.Info("stopped balancer")

	wg, ctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Endpoint != "" {
		server := metrics.NewServer(a.cfg.Metrics.Endpoint, a.metrics, a.log)
		wg.Go(func() error {
			return server.Run(ctx)
		})
	}

	wg.Go(func() error {
		if err := a.Clear(ctx); err != nil {
			return err
		}
		if err := a.installARP(ctx); err != nil {
			return err
		}
		return a.runSchedulers(ctx)
	})

	return wg.Wait()
}

// Clear removes every rule from the managed table, retrying transient
// controller errors.
func (a *App) Clear(ctx context.Context) error {
	outcome, err := a.retry(ctx, "clear table", func() (controller.Outcome, error) {
		return a.client.ClearTable(ctx, a.target.Node, a.target.Table)
	})
	if err != nil {
		return fmt.Errorf("failed to clear table %d on %s: %w", a.target.Table, a.target.Node, err)
	}

	switch outcome {
	case controller.OutcomeNoop:
		a.log.Infow("no flows to delete", zap.String("node", a.target.Node), zap.Uint8("table", a.target.Table))
	default:
		a.log.Infow("deleted all flows", zap.String("node", a.target.Node), zap.Uint8("table", a.target.Table))
	}
	return nil
}

// installARP installs the ARP-passthrough rule of every service once.
func (a *App) installARP(ctx context.Context) error {
	for _, s := range a.schedulers {
		rule := s.ARPRule()

		outcome, err := a.retry(ctx, "install ARP flow", func() (controller.Outcome, error) {
			return a.client.InstallFlow(ctx, a.target.Node, rule)
		})
		a.metrics.FlowInstalled(s.Name(), metrics.KindARP, err)
		if err != nil {
			return fmt.Errorf("failed to install ARP flow %q: %w", rule.ID, err)
		}

		a.log.Infow("installed ARP flow", zap.String("flow", rule.ID), zap.Stringer("outcome", outcome))
	}
	return nil
}

func (a *App) runSchedulers(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	for _, s := range a.schedulers {
		wg.Go(func() error {
			return s.Run(ctx)
		})
	}
	return wg.Wait()
}

// retry repeats op with exponential backoff while it fails with a
// retryable error.
func (a *App) retry(ctx context.Context, what string, op func() (controller.Outcome, error)) (controller.Outcome, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.Startup.InitialInterval

	return backoff.Retry(ctx,
		func() (controller.Outcome, error) {
			outcome, err := op()
			if err != nil && !controller.IsRetryable(err) {
				return outcome, backoff.Permanent(err)
			}
			return outcome, err
		},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(a.cfg.Startup.MaxElapsedTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.log.Warnw("controller request failed, retrying",
				zap.String("request", what),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
}
