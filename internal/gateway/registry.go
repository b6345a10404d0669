package gateway

import (
	"time"

	"github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/sony/gobreaker/v2"
)

// Registry holds the registered gateway adapters keyed by provider name.
// Each adapter gets its own circuit breaker so one flapping gateway does
// not take the other down with it.
type Registry struct {
	providers       map[transaction.Provider]Provider
	circuitBreakers map[transaction.Provider]*gobreaker.CircuitBreaker[*Result]
	order           []transaction.Provider
}

func NewRegistry(providersList ...Provider) *Registry {
	r := &Registry{
		providers:       make(map[transaction.Provider]Provider),
		circuitBreakers: make(map[transaction.Provider]*gobreaker.CircuitBreaker[*Result]),
	}
	for _, p := range providersList {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
	r.circuitBreakers[name] = gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        string(name),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
}

// Get resolves a provider by name.
func (r *Registry) Get(name transaction.Provider) (Provider, *gobreaker.CircuitBreaker[*Result], error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, nil, errors.NewDomainError(
			"invalid_provider",
			"unsupported payment method: "+string(name),
			errors.ErrInvalidProvider,
		)
	}
	return p, r.circuitBreakers[name], nil
}

// Providers returns the registered provider names in registration order.
func (r *Registry) Providers() []transaction.Provider {
	out := make([]transaction.Provider, len(r.order))
	copy(out, r.order)
	return out
}
