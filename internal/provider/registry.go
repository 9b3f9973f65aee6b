package provider

import (
	"fmt"

	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
)

// Registry is the single dynamic-dispatch point: it maps the batch's
// provider enum to a concrete PaymentProvider.
type Registry struct {
	providers map[providerdomain.Provider]providerdomain.PaymentProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[providerdomain.Provider]providerdomain.PaymentProvider)}
}

// Register binds an implementation to its enum value.
func (r *Registry) Register(name providerdomain.Provider, impl providerdomain.PaymentProvider) {
	r.providers[name] = impl
}

// Get resolves the provider for a batch.
func (r *Registry) Get(name providerdomain.Provider) (providerdomain.PaymentProvider, error) {
	impl, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", providerdomain.ErrUnknownProvider, name)
	}
	return impl, nil
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name providerdomain.Provider) bool {
	_, ok := r.providers[name]
	return ok
}
