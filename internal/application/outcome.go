package application

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bnema/sessionpool/internal/domain"
)

// Outcome summarizes one settled request for reporting.
type Outcome struct {
	ID       string          `json:"id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Status   int             `json:"status,omitempty"`
	Code     string          `json:"code"`
	Message  string          `json:"message,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Duration time.Duration   `json:"duration"`
}

func (o Outcome) OK() bool {
	return o.Code == domain.CodeOK
}

// RunAll enqueues every descriptor and waits until each has settled or ctx ends.
// Outcomes come back in descriptor order.
func RunAll(ctx context.Context, scheduler *Scheduler, descriptors []domain.Descriptor) []Outcome {
	outcomes := make([]Outcome, len(descriptors))

	var wg sync.WaitGroup
	for i, descriptor := range descriptors {
		started := time.Now()
		deferred := scheduler.Enqueue(descriptor)

		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := deferred.Wait(ctx)
			outcomes[i] = newOutcome(deferred.ID(), descriptor, result, err, time.Since(started))
		}()
	}
	wg.Wait()

	return outcomes
}

// Failed counts outcomes that did not succeed.
func Failed(outcomes []Outcome) int {
	failed := 0
	for _, outcome := range outcomes {
		if !outcome.OK() {
			failed++
		}
	}

	return failed
}

func newOutcome(id string, descriptor domain.Descriptor, result domain.Result, err error, elapsed time.Duration) Outcome {
	outcome := Outcome{
		ID:       id,
		Method:   descriptor.Method,
		URL:      descriptor.URL,
		Duration: elapsed,
	}

	if err == nil {
		outcome.Status = result.StatusCode
		outcome.Code = domain.CodeOK
		outcome.Response = result.Response
		return outcome
	}

	normalized := normalizeError(err)
	outcome.Code = normalized.Code
	outcome.Message = normalized.Message

	return outcome
}
