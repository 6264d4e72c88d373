package runner

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerRegistry manages per-collaborator circuit breakers. Enrichment
// services are advisory, so once one starts failing consistently the
// runner stops calling it for a while instead of paying the latency on
// every task.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the circuit breaker for the named collaborator, creating it
// on first use.
func (r *breakerRegistry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Don't count caller cancellation as collaborator failure
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[name] = cb
	return cb
}

// enrichContext calls the context enricher through its breaker.
func (r *Runner) enrichContext(ctx context.Context, description string) (Enrichment, error) {
	cb := r.breakers.get("context-enrichment")
	result, err := cb.Execute(func() (interface{}, error) {
		return r.enricher.GetRelevantContext(ctx, description)
	})
	if err != nil {
		return Enrichment{}, err
	}
	return result.(Enrichment), nil
}

// detectAntiPatterns calls the anti-pattern detector through its breaker.
func (r *Runner) detectAntiPatterns(ctx context.Context, role, description string) ([]Warning, error) {
	cb := r.breakers.get("anti-pattern")
	result, err := cb.Execute(func() (interface{}, error) {
		return r.detector.Detect(ctx, role, description)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Warning), nil
}
