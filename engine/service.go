package engine

import (
	"context"
	"errors"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/stats"
	"github.com/xapiens/rvpf-processor/store"
)

// Service assembles one engine instance: controller, controls and loop,
// running the worker and the controls refresher under one cancelable group.
type Service struct {
	logger     *logiface.Logger[logiface.Event]
	controller *Controller
	controls   *Controls
	loop       *Loop
	notReady   chan struct{}
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	// Config is the engine configuration; it must validate.
	Config Config

	// Receptionist is required.
	Receptionist store.Receptionist

	// Store is the downstream store client; required.
	Store store.Client

	// Resolver is the definition arena; required.
	Resolver processor.Resolver

	// Signals is optional.
	Signals SignalSender

	// Suspend is optional.
	Suspend Suspender

	// Logger defaults to DefaultLogger().
	Logger *logiface.Logger[logiface.Event]

	// Stats defaults to a fresh instance.
	Stats *stats.Stats

	// Probe defaults to the runtime probe.
	Probe MemoryProbe

	// Clock defaults to the wall clock.
	Clock func() point.Stamp

	// CutoffPoint and FilterPoint name the external control points; either
	// may be zero, disabling that control.
	CutoffPoint point.ID
	FilterPoint point.ID
}

// NewService validates the configuration and assembles the engine. A
// configuration problem refuses to start.
func NewService(c *ServiceConfig) (*Service, error) {
	if c == nil {
		panic(`engine: nil service config`)
	}

	logger := c.Logger
	if logger == nil {
		logger = DefaultLogger()
	}

	controller, err := NewController(&ControllerConfig{
		Config: c.Config,
		Logger: logger,
		Stats:  c.Stats,
		Probe:  c.Probe,
		Clock:  c.Clock,
	})
	if err != nil {
		return nil, err
	}

	controls := NewControls(c.Store, controller.Cache(), c.CutoffPoint, c.FilterPoint, logger)
	controller.controls = controls

	loop := NewLoop(&LoopConfig{
		Controller:   controller,
		Receptionist: c.Receptionist,
		Client:       c.Store,
		Resolver:     c.Resolver,
		Signals:      c.Signals,
		Suspend:      c.Suspend,
		Logger:       logger,
	})

	return &Service{
		logger:     logger,
		controller: controller,
		controls:   controls,
		loop:       loop,
		notReady:   make(chan struct{}, 1),
	}, nil
}

// Controller exposes the batch controller, e.g. to schedule deferred
// updates.
func (x *Service) Controller() *Controller {
	return x.controller
}

// Stats exposes the engine counters.
func (x *Service) Stats() *stats.Stats {
	return x.controller.Stats()
}

// Collector returns a Prometheus collector over the engine counters.
func (x *Service) Collector() *stats.Collector {
	return stats.NewCollector(x.controller.Stats())
}

// NotifyNotReady triggers a controls refresh, as raised by
// services-not-ready events.
func (x *Service) NotifyNotReady() {
	select {
	case x.notReady <- struct{}{}:
	default:
	}
}

// Run refreshes the controls, then processes batches until the context
// cancels or the loop stops.
func (x *Service) Run(ctx context.Context) error {
	if err := x.controls.Refresh(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		// release the refresher on a clean loop exit too
		defer cancel()
		return x.loop.Run(ctx)
	})

	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-x.notReady:
				if err := x.controls.Refresh(ctx); err != nil {
					x.logger.Warning().Err(err).Log(`controls refresh failed`)
				}
			}
		}
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// DefaultLogger returns the engine's production logger: structured JSON on
// standard error.
func DefaultLogger() *logiface.Logger[logiface.Event] {
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return izerolog.L.New(
		izerolog.L.WithZerolog(zl),
		izerolog.L.WithLevel(logiface.LevelInformational),
	).Logger()
}
