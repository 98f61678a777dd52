// Package persistence implements the persistence stage (C6): durable,
// batched append of Records as CSV text rows, guarded by a circuit
// breaker and exponential backoff on mid-stream write errors.
package persistence

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"tickerpipe/internal/infra"
	"tickerpipe/internal/record"
	"tickerpipe/internal/ring"
)

// defaultFlushInterval is the flush cadence used when Open is given a
// non-positive interval, amortizing syscall cost while bounding data loss
// to the flush window.
const defaultFlushInterval = 10 * time.Millisecond

// idleSleep bounds how long the stage waits between polls of Ring-B when
// it is empty.
const idleSleep = 200 * time.Microsecond

// Stage owns the output file and drains Ring-B into it.
type Stage struct {
	ringB *ring.Ring[record.Record]
	log   *slog.Logger

	path          string
	file          *os.File
	writer        *bufio.Writer
	flushInterval time.Duration
	lastFlush     time.Time

	breaker *infra.CircuitBreaker
	retries int

	writeErrors atomic.Int64
	rowsWritten atomic.Int64

	shutdown atomic.Bool
}

// Open opens path in append mode, writing the header row if the file is
// currently empty. flushInterval sets the batched-flush cadence; if it is
// zero or negative, defaultFlushInterval is used instead. It returns a nil
// stage and a non-nil error if the file cannot be opened; the
// orchestrator must abort startup in that case.
func Open(path string, ringB *ring.Ring[record.Record], flushInterval time.Duration, log *slog.Logger) (*Stage, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: stat %s: %w", path, err)
	}

	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	s := &Stage{
		ringB:         ringB,
		log:           log,
		path:          path,
		file:          f,
		writer:        bufio.NewWriter(f),
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
		breaker:       infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("persistence-write")),
	}

	if info.Size() == 0 {
		if _, err := s.writer.WriteString(record.Header() + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: write header: %w", err)
		}
		if err := s.writer.Flush(); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: flush header: %w", err)
		}
	}

	return s, nil
}

// RequestShutdown tells Run to drain Ring-B to exhaustion, flush, and
// close, then return.
func (s *Stage) RequestShutdown() {
	s.shutdown.Store(true)
}

// Run drains Ring-B into the output file until RequestShutdown has been
// called and Ring-B is empty. It is meant to run on its own goroutine.
func (s *Stage) Run() {
	for {
		drained := s.drainOnce()
		if s.shutdown.Load() && s.ringB.IsEmpty() {
			s.writer.Flush()
			s.file.Close()
			return
		}
		if !drained {
			time.Sleep(idleSleep)
		}
		s.maybeFlush()
	}
}

func (s *Stage) drainOnce() bool {
	r, ok := s.ringB.TryPop()
	if !ok {
		return false
	}
	s.writeRow(r)
	return true
}

func (s *Stage) writeRow(r record.Record) {
	if !s.breaker.Allow() {
		s.writeErrors.Add(1)
		return
	}

	if _, err := s.writer.WriteString(r.ToRow() + "\n"); err != nil {
		s.recordWriteFailure(err)
		return
	}

	s.breaker.RecordSuccess()
	s.retries = 0
	s.rowsWritten.Add(1)
}

func (s *Stage) recordWriteFailure(err error) {
	s.writeErrors.Add(1)
	s.breaker.RecordFailure()
	s.log.Error("persistence: write failed", "path", s.path, "error", err)

	backoff := infra.CalculateBackoff(s.retries)
	s.retries++
	time.Sleep(backoff)
}

func (s *Stage) maybeFlush() {
	if time.Since(s.lastFlush) < s.flushInterval {
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.log.Error("persistence: flush failed", "path", s.path, "error", err)
	}
	s.lastFlush = time.Now()
}

// WriteErrors returns the count of rows that could not be written,
// whether due to a stream error or the circuit breaker being open.
func (s *Stage) WriteErrors() int64 { return s.writeErrors.Load() }

// RowsWritten returns the count of data rows successfully written.
func (s *Stage) RowsWritten() int64 { return s.rowsWritten.Load() }
