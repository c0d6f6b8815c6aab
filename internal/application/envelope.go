package application

import (
	"context"
	"sync"

	"github.com/bnema/sessionpool/internal/domain"
)

// Envelope pairs a queued descriptor with the handle its caller waits on.
type Envelope struct {
	ID         string
	Descriptor domain.Descriptor
	deferred   *Deferred
}

func newEnvelope(id string, descriptor domain.Descriptor) *Envelope {
	return &Envelope{
		ID:         id,
		Descriptor: descriptor.Escaped(),
		deferred:   newDeferred(id),
	}
}

// Deferred settles exactly once, with either a Result or a *domain.ServiceError.
type Deferred struct {
	id     string
	once   sync.Once
	done   chan struct{}
	result domain.Result
	err    error
}

func newDeferred(id string) *Deferred {
	return &Deferred{id: id, done: make(chan struct{})}
}

func (d *Deferred) ID() string {
	return d.id
}

func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the request settles or ctx ends.
func (d *Deferred) Wait(ctx context.Context) (domain.Result, error) {
	select {
	case <-d.done:
		return d.result, d.err
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	}
}

func (d *Deferred) resolve(result domain.Result) bool {
	return d.settle(result, nil)
}

func (d *Deferred) reject(err error) bool {
	return d.settle(domain.Result{}, err)
}

func (d *Deferred) settle(result domain.Result, err error) bool {
	settled := false
	d.once.Do(func() {
		d.result = result
		d.err = err
		settled = true
		close(d.done)
	})

	return settled
}
