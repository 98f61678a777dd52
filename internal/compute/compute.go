// Package compute implements the compute stage (C5): a dedicated,
// single-threaded loop that dequeues Records from Ring-A, updates the
// time-gated EMAs, and forwards enriched Records to Ring-B.
package compute

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"tickerpipe/internal/ema"
	"tickerpipe/internal/infra"
	"tickerpipe/internal/record"
	"tickerpipe/internal/ring"
)

// Stage owns the EMA engine and moves Records from Ring-A to Ring-B.
type Stage struct {
	ringA *ring.Ring[record.Record]
	ringB *ring.Ring[record.Record]
	ema   *ema.Engine
	log   *slog.Logger

	limiter *infra.RateLimiter

	parseErrors      atomic.Int64
	persistenceDrops atomic.Int64

	shutdown atomic.Bool
}

// New constructs a Stage wiring ringA (input) to ringB (output) through the
// given EMA engine.
func New(ringA, ringB *ring.Ring[record.Record], engine *ema.Engine, log *slog.Logger) *Stage {
	return &Stage{
		ringA:   ringA,
		ringB:   ringB,
		ema:     engine,
		log:     log,
		limiter: infra.DropLogLimiter(),
	}
}

// RequestShutdown tells Run to drain Ring-A to exhaustion and return. It
// does not interrupt an in-flight iteration.
func (s *Stage) RequestShutdown() {
	s.shutdown.Store(true)
}

// Run executes the compute loop until RequestShutdown is called and
// Ring-A is empty. It is meant to run on its own
// goroutine; the orchestrator joins it with a bounded timeout.
func (s *Stage) Run() {
	for {
		for {
			r, ok := s.ringA.TryPop()
			if !ok {
				break
			}
			s.process(&r)
			s.forward(r)
		}
		if s.shutdown.Load() && s.ringA.IsEmpty() {
			return
		}
		time.Sleep(time.Microsecond) // cooperative yield
	}
}

// process updates r's EMA fields in place from its own event_time. A
// price parse failure leaves the EMA fields at whatever value was
// previously current; it never terminates the stage.
func (s *Stage) process(r *record.Record) {
	if price, err := strconv.ParseFloat(r.Price, 64); err == nil {
		r.PriceEMA = s.ema.Price.Update(price, r.EventTime)
	} else {
		s.parseErrors.Add(1)
		r.PriceEMA = s.ema.Price.Value()
	}
	r.MidPriceEMA = s.ema.MidPrice.Update(r.MidPrice, r.EventTime)
}

// forward enqueues r into Ring-B, applying the drop-oldest policy on
// overrun: persistence is not latency-critical, but retained records must
// be the most recent ones to be meaningful downstream.
func (s *Stage) forward(r record.Record) {
	if s.ringB.TryPush(r) {
		return
	}
	s.ringB.TryPop() // drop oldest, racing persistence's own drain on the same ring
	if !s.ringB.TryPush(r) {
		// Ring-B has exactly one producer (this stage). Whether this TryPop
		// won or lost its race against persistence's concurrent drain, some
		// slot was freed by one of the two callers, and this is the only
		// goroutine allowed to push; the following TryPush must succeed.
		panic("compute: ring-B push failed immediately after drop-oldest pop")
	}
	n := s.persistenceDrops.Add(1)
	if s.limiter.TryAcquire() {
		s.log.Warn("compute: ring-B full, dropped oldest pending record", "persistence_drops", n)
	}
}

// ParseErrors returns the count of Records whose price field failed to
// parse as a real number.
func (s *Stage) ParseErrors() int64 { return s.parseErrors.Load() }

// PersistenceDrops returns the count of Records dropped from Ring-B under
// the drop-oldest overrun policy.
func (s *Stage) PersistenceDrops() int64 { return s.persistenceDrops.Load() }
