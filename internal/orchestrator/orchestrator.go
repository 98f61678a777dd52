// Package orchestrator wires the pipeline's components together (C7):
// bringing stages up leaves-first, verifying readiness before the
// transport subscribes, and coordinating a bounded cooperative shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tickerpipe/internal/compute"
	"tickerpipe/internal/config"
	"tickerpipe/internal/ema"
	"tickerpipe/internal/ingress"
	"tickerpipe/internal/metricsdb"
	"tickerpipe/internal/persistence"
	"tickerpipe/internal/record"
	"tickerpipe/internal/ring"
	"tickerpipe/internal/transport"
)

// Pipeline owns every long-lived component and coordinates their
// lifecycle.
type Pipeline struct {
	cfg config.Config
	log *slog.Logger

	ringA *ring.Ring[record.Record]
	ringB *ring.Ring[record.Record]

	engine      *ema.Engine
	persistence *persistence.Stage
	computeS    *compute.Stage
	ingressS    *ingress.Stage
	session     *transport.Session
	metrics     *metricsdb.DB

	computeDone     chan struct{}
	persistenceDone chan struct{}
}

// New constructs Rings, the EMA engine, and the Persistence stage, and
// opens the metrics database. It does not yet spawn any goroutines or
// connect the transport; that happens in Start. A non-nil error here
// means startup must abort before anything else runs.
func New(cfg config.Config, log *slog.Logger) (*Pipeline, error) {
	ringA := ring.New[record.Record](cfg.RingACapacity)
	ringB := ring.New[record.Record](cfg.RingBCapacity)
	engine := ema.NewEngine(cfg.EMAInterval())

	persist, err := persistence.Open(cfg.Output, ringB, cfg.FlushInterval(), log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: persistence stage not ready: %w", err)
	}

	metrics, err := metricsdb.Open(cfg.MetricsDBPath)
	if err != nil {
		persist.RequestShutdown()
		persist.Run()
		return nil, fmt.Errorf("orchestrator: metrics db not ready: %w", err)
	}

	computeS := compute.New(ringA, ringB, engine, log)
	ingressS := ingress.New(ringA, log)

	p := &Pipeline{
		cfg:             cfg,
		log:             log,
		ringA:           ringA,
		ringB:           ringB,
		engine:          engine,
		persistence:     persist,
		computeS:        computeS,
		ingressS:        ingressS,
		metrics:         metrics,
		computeDone:     make(chan struct{}),
		persistenceDone: make(chan struct{}),
	}
	return p, nil
}

// Start spawns the Persistence and Compute tasks, then connects and
// subscribes the transport, delivering frames to Ingress. Persistence and
// Compute are up and draining before the transport ever sees a frame, so
// early traffic never finds Ring-A without a consumer.
func (p *Pipeline) Start(ctx context.Context) error {
	go func() {
		defer close(p.persistenceDone)
		p.persistence.Run()
	}()
	go func() {
		defer close(p.computeDone)
		p.computeS.Run()
	}()

	p.session = transport.New(p.cfg.WSURL, p.cfg.Product, p.ingressS.OnFrame)
	if err := p.session.Connect(ctx); err != nil {
		p.Shutdown(ctx)
		return fmt.Errorf("orchestrator: transport connect failed: %w", err)
	}

	return nil
}

// Run blocks streaming frames from the transport until the session ends
// (ctx cancellation, or a transport error — there is no reconnect).
func (p *Pipeline) Run(ctx context.Context) error {
	return p.session.Run(ctx)
}

// Shutdown executes the cooperative shutdown sequence: stop accepting new
// frames, signal Compute to drain Ring-A and join it to completion, only
// then signal Persistence to drain Ring-B and join it, and finally close
// the metrics db. Compute must fully exit before Persistence is told to
// stop: otherwise Persistence could observe Ring-B momentarily empty and
// return while Compute still holds buffered Ring-A records it hasn't
// forwarded yet, silently losing them past the point anything still counts
// drops.
func (p *Pipeline) Shutdown(ctx context.Context) {
	if p.session != nil {
		p.session.Close()
	}

	timeout := p.cfg.ShutdownTimeout()

	p.computeS.RequestShutdown()
	select {
	case <-p.computeDone:
	case <-time.After(timeout):
		p.log.Warn("orchestrator: compute stage did not drain within shutdown timeout", "timeout", timeout)
	}

	p.persistence.RequestShutdown()
	select {
	case <-p.persistenceDone:
	case <-time.After(timeout):
		p.log.Warn("orchestrator: persistence stage did not drain within shutdown timeout", "timeout", timeout)
	}

	p.saveFinalSnapshot(ctx)

	if p.metrics != nil {
		p.metrics.Close()
	}
}

func (p *Pipeline) saveFinalSnapshot(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	snap := metricsdb.Snapshot{
		Timestamp:        time.Now().UTC(),
		IngressDrops:     p.ingressS.IngressDrops(),
		PersistenceDrops: p.computeS.PersistenceDrops(),
		ParseErrors:      p.computeS.ParseErrors(),
		WriteErrors:      p.persistence.WriteErrors(),
		RowsWritten:      p.persistence.RowsWritten(),
	}
	if err := p.metrics.Save(ctx, snap); err != nil {
		p.log.Error("orchestrator: failed to save final metrics snapshot", "error", err)
	}
}
