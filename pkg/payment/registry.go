package payment

import (
	"time"

	"paycore/internal/domain"
)

// Registry selects the adapter for a provider.
type Registry struct {
	providers map[domain.Provider]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Provider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// DefaultRegistry wires every built-in adapter with the given network timeout.
func DefaultRegistry(timeout time.Duration) *Registry {
	return NewRegistry(
		NewCardGateway(timeout),
		NewTabby(timeout),
		NewTamara(timeout),
		NewInvoiceGateway(timeout),
		NewCashOnDelivery(),
	)
}

func (r *Registry) Get(p domain.Provider) (Provider, bool) {
	a, ok := r.providers[p]
	return a, ok
}
