// Package ingress implements the ingress stage (C4): it turns one decoded
// transport frame into one Record and hands it off to Ring-A without ever
// blocking on downstream progress.
package ingress

import (
	"encoding/json"
	"log/slog"

	"tickerpipe/internal/infra"
	"tickerpipe/internal/record"
	"tickerpipe/internal/ring"
)

// Stage decodes frames and enqueues Records into Ring-A. Its OnFrame method
// is the transport collaborator's callback; it must never block.
type Stage struct {
	ringA  *ring.Ring[record.Record]
	log    *slog.Logger
	limiter *infra.RateLimiter

	decodeDrops int64
	typeDrops   int64
	ingressDrops int64
}

// New constructs a Stage writing into ringA.
func New(ringA *ring.Ring[record.Record], log *slog.Logger) *Stage {
	return &Stage{
		ringA:   ringA,
		log:     log,
		limiter: infra.DropLogLimiter(),
	}
}

// OnFrame decodes one frame, builds a Record, and attempts to enqueue it
// into Ring-A. It never blocks: a full Ring-A is handled by the
// drop-newest policy (the push fails, a counter increments, and OnFrame
// returns immediately).
func (s *Stage) OnFrame(frame []byte) {
	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		s.decodeDrops++
		s.logThrottled("ingress: frame decode failed", "error", err)
		return
	}

	r, err := record.FromDecoded(decoded)
	if err != nil {
		s.typeDrops++
		return
	}

	if !s.ringA.TryPush(r) {
		s.ingressDrops++
		s.logThrottled("ingress: ring-A full, dropping newest frame",
			"product_id", r.ProductID, "ingress_drops", s.ingressDrops)
	}
}

func (s *Stage) logThrottled(msg string, args ...any) {
	if s.limiter.TryAcquire() {
		s.log.Warn(msg, args...)
	}
}

// DecodeDrops returns the count of frames dropped because they failed to
// decode as JSON.
func (s *Stage) DecodeDrops() int64 { return s.decodeDrops }

// TypeDrops returns the count of frames dropped because they were not a
// ticker event or were missing a required field.
func (s *Stage) TypeDrops() int64 { return s.typeDrops }

// IngressDrops returns the count of Records dropped because Ring-A was
// full at enqueue time (drop-newest policy).
func (s *Stage) IngressDrops() int64 { return s.ingressDrops }
