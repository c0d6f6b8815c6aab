package application

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultDelay = time.Millisecond

type SchedulerConfig struct {
	// Delay is the reconciliation tick interval.
	Delay   time.Duration
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
	NewID   func() string
}

type Stats struct {
	Queued   int
	Pending  int
	Sessions int
	Active   int
	Running  bool
}

// Scheduler queues descriptors and feeds them to the pool in arrival order.
type Scheduler struct {
	pool    *Pool
	delay   time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
	newID   func() string

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}

	mu       sync.Mutex
	queue    []*Envelope
	pending  []*Envelope
	running  bool
	closed   bool
	loopDone chan struct{}
}

func NewScheduler(pool *Pool, cfg SchedulerConfig) *Scheduler {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		pool:    pool,
		delay:   delay,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		metrics: cfg.Metrics,
		newID:   newID,
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
}

func (s *Scheduler) Pool() *Pool {
	return s.pool
}

// Enqueue queues a request and returns its handle without blocking.
func (s *Scheduler) Enqueue(descriptor domain.Descriptor) *Deferred {
	envelope := newEnvelope(s.newID(), descriptor)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		envelope.deferred.reject(domain.ErrSchedulerClosed)
		return envelope.deferred
	}

	s.queue = append(s.queue, envelope)
	s.shiftLocked()
	s.startLocked()
	s.observeLocked()

	if e := s.logger.Trace(); e.Enabled() {
		e.Str("envelope_id", envelope.ID).
			Str("method", envelope.Descriptor.Method).
			Str("url", envelope.Descriptor.URL).
			Strs("body_keys", domain.FlattenKeys(envelope.Descriptor.Body)).
			Msg("enqueued")
	}

	return envelope.deferred
}

// Shift moves the head of the queue into pending when pending has room.
func (s *Scheduler) Shift() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shiftLocked()
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued, pending, running := len(s.queue), len(s.pending), s.running
	s.mu.Unlock()

	sessions, active := s.pool.counts()

	return Stats{
		Queued:   queued,
		Pending:  pending,
		Sessions: sessions,
		Active:   active,
		Running:  running,
	}
}

// Close rejects everything still waiting, stops the loop and waits for in-flight requests.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	drained := s.drainLocked()
	close(s.stop)
	done := s.loopDone
	s.mu.Unlock()

	s.rejectAll(drained, domain.ErrSchedulerClosed)

	defer s.cancel()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return s.pool.Wait(ctx)
}

func (s *Scheduler) shiftLocked() bool {
	if len(s.queue) == 0 || len(s.pending) >= s.pool.Concurrency() {
		return false
	}

	head := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.pending = append(s.pending, head)

	return true
}

func (s *Scheduler) startLocked() {
	if s.running {
		return
	}

	s.running = true
	done := make(chan struct{})
	s.loopDone = done
	go s.loop(done)
}

func (s *Scheduler) loop(done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()

	for s.reconcile() {
		select {
		case <-ticker.C:
		case <-s.stop:
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

// reconcile runs one tick and reports whether the loop should keep going.
func (s *Scheduler) reconcile() bool {
	s.pool.Prune()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 && s.pool.Ready() {
		s.shiftLocked()
	}

	if len(s.pending) > 0 && s.pool.Available() {
		head := s.pending[0]
		if s.pool.Resolve(s.ctx, head) {
			s.pending[0] = nil
			s.pending = s.pending[1:]
		}
	}

	if len(s.pending) > 0 && !s.pool.Available() && s.pool.beginCreate() {
		go s.createSession()
	}

	s.observeLocked()

	if len(s.queue) == 0 && len(s.pending) == 0 {
		s.running = false
		return false
	}

	return true
}

func (s *Scheduler) createSession() {
	err := s.pool.finishCreate(s.ctx)
	if err == nil {
		return
	}

	s.mu.Lock()
	drained := s.drainLocked()
	s.observeLocked()
	s.mu.Unlock()

	s.logger.Warn().Err(err).Int("rejected", len(drained)).Msg("session creation failed, rejecting waiting requests")
	s.rejectAll(drained, err)
}

func (s *Scheduler) drainLocked() []*Envelope {
	drained := make([]*Envelope, 0, len(s.queue)+len(s.pending))
	drained = append(drained, s.pending...)
	drained = append(drained, s.queue...)
	s.queue = nil
	s.pending = nil

	return drained
}

func (s *Scheduler) rejectAll(envelopes []*Envelope, err error) {
	for _, envelope := range envelopes {
		envelope.deferred.reject(err)
	}
	s.metrics.RecordDrained(len(envelopes))
}

func (s *Scheduler) observeLocked() {
	s.metrics.ObserveQueue(len(s.queue), len(s.pending))
}
