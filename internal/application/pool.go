package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/metrics"
	"github.com/bnema/sessionpool/internal/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultConcurrency = 1

// maxIssueSkew bounds how far before the local clock a server-reported issue time may
// anchor a new session.
const maxIssueSkew = 30 * time.Second

var (
	ErrPoolSaturated = errors.New("session pool is at capacity or already creating a session")
	errEmptyToken    = errors.New("credential exchange returned an empty token")
)

type PoolConfig struct {
	Concurrency int
	Credentials domain.BasicCredentials
	Store       ports.CredentialStore
	Transport   ports.Transport
	// Defaults apply to every dispatch unless the descriptor overrides them.
	Defaults domain.CallOptions
	Clock    ports.Clock
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
	NewID    func() string
}

// Pool holds at most Concurrency sessions and hands each to one request at a time.
type Pool struct {
	mu          sync.Mutex
	sessions    []*domain.Session
	concurrency int
	starting    bool

	credentials domain.BasicCredentials
	store       ports.CredentialStore
	transport   ports.Transport
	defaults    domain.CallOptions
	clock       ports.Clock
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	newID       func() string

	inflight sync.WaitGroup
}

func NewPool(cfg PoolConfig) *Pool {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Pool{
		concurrency: concurrency,
		credentials: cfg.Credentials,
		store:       cfg.Store,
		transport:   cfg.Transport,
		defaults:    cfg.Defaults,
		clock:       clock,
		logger:      logger.With().Str("component", "pool").Logger(),
		metrics:     cfg.Metrics,
		newID:       newID,
	}
}

func (p *Pool) Concurrency() int {
	return p.concurrency
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sessions)
}

func (p *Pool) Starting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.starting
}

// Available reports whether at least one session is idle and unexpired.
func (p *Pool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.availableLocked()
}

// Ready reports whether a queued request may be admitted: no creation is in flight and
// a session is idle or can still be created.
func (p *Pool) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.starting && (p.availableLocked() || len(p.sessions) < p.concurrency)
}

// CanCreate reports whether a new session may be requested right now.
func (p *Pool) CanCreate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.starting && len(p.sessions) < p.concurrency
}

// Acquire marks one valid session active and returns it, newest first. It returns nil when none is valid.
func (p *Pool) Acquire() *domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	for i := len(p.sessions) - 1; i >= 0; i-- {
		session := p.sessions[i]
		if !session.Valid(now) {
			continue
		}

		session.Active = true
		session.Used = now
		p.observeLocked()
		return session
	}

	return nil
}

// Release returns a session to idle and slides its expiry.
func (p *Pool) Release(session *domain.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session.Active = false
	session.Extend(p.clock.Now())
	p.observeLocked()
}

// Invalidate drops the session when err says its token was rejected, and otherwise just frees it.
func (p *Pool) Invalidate(session *domain.Session, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session.Active = false
	if !domain.IsInvalidToken(err) {
		p.observeLocked()
		return
	}

	for i, candidate := range p.sessions {
		if candidate == session {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			break
		}
	}
	p.metrics.RecordInvalidation()
	p.logger.Debug().Str("session_id", session.ID).Msg("session token rejected, removed from pool")
	p.observeLocked()
}

// Prune removes expired idle sessions and returns how many were dropped. An active
// session stays until its dispatch releases or invalidates it.
func (p *Pool) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	kept := p.sessions[:0]
	removed := 0
	for _, session := range p.sessions {
		if !session.Active && session.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, session)
	}
	clear(p.sessions[len(kept):])
	p.sessions = kept

	if removed > 0 {
		p.logger.Debug().Int("removed", removed).Msg("pruned expired sessions")
		p.observeLocked()
	}

	return removed
}

// Create exchanges credentials for one new session.
func (p *Pool) Create(ctx context.Context) error {
	if !p.beginCreate() {
		return ErrPoolSaturated
	}

	return p.finishCreate(ctx)
}

func (p *Pool) beginCreate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.starting || len(p.sessions) >= p.concurrency {
		return false
	}

	p.starting = true
	return true
}

func (p *Pool) finishCreate(ctx context.Context) error {
	token, err := p.store.Exchange(ctx, p.credentials)
	if err == nil && token.Value == "" {
		err = domain.ServiceUnavailable(errEmptyToken)
	}
	if err != nil {
		p.mu.Lock()
		p.starting = false
		p.mu.Unlock()

		serviceErr := normalizeError(err)
		p.metrics.RecordCreation(metrics.OutcomeFailed)
		p.logger.Warn().Str("code", serviceErr.Code).Msg("credential exchange failed")
		return serviceErr
	}

	session := domain.NewSession(p.newID(), token.Value, sessionIssued(token.Issued, p.clock.Now()))

	p.mu.Lock()
	p.starting = false
	if len(p.sessions) >= p.concurrency {
		p.mu.Unlock()
		p.logger.Warn().Str("session_id", session.ID).Msg("pool filled while creating, discarding new session")
		p.revokeDiscarded(ctx, session)
		return nil
	}
	p.sessions = append(p.sessions, &session)
	p.metrics.RecordCreation(metrics.OutcomeSuccess)
	p.observeLocked()
	p.mu.Unlock()

	p.logger.Debug().Str("session_id", session.ID).Time("expires", session.Expires).Msg("session created")

	return nil
}

// sessionIssued picks the issue time of a new session: the server's when it is recent,
// now when it is missing or ahead, and never older than maxIssueSkew.
func sessionIssued(reported, now time.Time) time.Time {
	if reported.IsZero() || !reported.Before(now) {
		return now
	}
	if floor := now.Add(-maxIssueSkew); reported.Before(floor) {
		return floor
	}

	return reported
}

func (p *Pool) revokeDiscarded(ctx context.Context, session domain.Session) {
	revoker, ok := p.store.(ports.TokenRevoker)
	if !ok {
		return
	}

	if err := revoker.Revoke(ctx, session.Token); err != nil {
		p.logger.Warn().Err(err).Str("session_id", session.ID).Msg("revoke discarded session")
	}
}

// Resolve pairs the envelope with an idle session and dispatches it in the background.
// It returns false, leaving the envelope untouched, when no session is idle.
func (p *Pool) Resolve(ctx context.Context, envelope *Envelope) bool {
	session := p.Acquire()
	if session == nil {
		return false
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.dispatch(ctx, session, envelope)
	}()

	return true
}

func (p *Pool) dispatch(ctx context.Context, session *domain.Session, envelope *Envelope) {
	descriptor := envelope.Descriptor.Unescaped().WithBearer(session.Token)
	descriptor.Options = descriptor.Options.Merge(p.defaults)

	callCtx := ctx
	if descriptor.Options.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, descriptor.Options.Timeout)
		defer cancel()
	}

	started := time.Now()
	raw, err := p.transport.Execute(callCtx, descriptor)

	var result domain.Result
	if err == nil {
		result, err = domain.ClassifyResponse(raw)
	}

	if err != nil {
		serviceErr := normalizeError(err)
		p.Invalidate(session, serviceErr)
		p.metrics.RecordDispatch(metrics.OutcomeError, time.Since(started))
		p.logger.Debug().
			Str("envelope_id", envelope.ID).
			Str("session_id", session.ID).
			Str("code", serviceErr.Code).
			Msg("request failed")
		envelope.deferred.reject(serviceErr)
		return
	}

	p.Release(session)
	p.metrics.RecordDispatch(metrics.OutcomeSuccess, time.Since(started))
	p.logger.Debug().
		Str("envelope_id", envelope.ID).
		Str("session_id", session.ID).
		Int("status", result.StatusCode).
		Msg("request completed")
	envelope.deferred.resolve(result)
}

// Snapshot copies the current sessions.
func (p *Pool) Snapshot() []domain.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Session, 0, len(p.sessions))
	for _, session := range p.sessions {
		out = append(out, *session)
	}

	return out
}

// Restore seeds the pool with previously issued sessions, skipping expired ones and any beyond the ceiling.
func (p *Pool) Restore(sessions []domain.Session) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	restored := 0
	for _, session := range sessions {
		if len(p.sessions) >= p.concurrency {
			break
		}
		if session.Token == "" || session.Expired(now) || p.hasTokenLocked(session.Token) {
			continue
		}

		session.Active = false
		if session.ID == "" {
			session.ID = p.newID()
		}
		p.sessions = append(p.sessions, &session)
		restored++
	}
	p.observeLocked()

	return restored
}

// Wait blocks until every in-flight dispatch has finished.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout removes every idle session and revokes its token when the store supports it.
func (p *Pool) Logout(ctx context.Context) error {
	p.mu.Lock()
	var idle []*domain.Session
	kept := p.sessions[:0]
	for _, session := range p.sessions {
		if session.Active {
			kept = append(kept, session)
			continue
		}
		idle = append(idle, session)
	}
	clear(p.sessions[len(kept):])
	p.sessions = kept
	p.observeLocked()
	p.mu.Unlock()

	revoker, ok := p.store.(ports.TokenRevoker)
	if !ok {
		return nil
	}

	var errs error
	for _, session := range idle {
		if err := revoker.Revoke(ctx, session.Token); err != nil {
			errs = errors.Join(errs, fmt.Errorf("revoke session %s: %w", session.ID, err))
		}
	}

	return errs
}

func (p *Pool) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, session := range p.sessions {
		if session.Active {
			active++
		}
	}

	return len(p.sessions), active
}

func (p *Pool) availableLocked() bool {
	now := p.clock.Now()
	for _, session := range p.sessions {
		if session.Valid(now) {
			return true
		}
	}

	return false
}

func (p *Pool) hasTokenLocked(token string) bool {
	for _, session := range p.sessions {
		if session.Token == token {
			return true
		}
	}

	return false
}

func (p *Pool) observeLocked() {
	if p.metrics == nil {
		return
	}

	active := 0
	for _, session := range p.sessions {
		if session.Active {
			active++
		}
	}
	p.metrics.ObservePool(len(p.sessions), active)
}
