package provider

import (
	"errors"
	"testing"

	providerdomain "github.com/smallbiznis/disburse/internal/provider/domain"
	providermock "github.com/smallbiznis/disburse/internal/provider/mock"
)

func TestRegistryResolvesRegisteredProvider(t *testing.T) {
	registry := NewRegistry()
	mock := providermock.New()
	registry.Register(providerdomain.ProviderMock, mock)

	if !registry.Exists(providerdomain.ProviderMock) {
		t.Fatal("mock should be registered")
	}
	if registry.Exists(providerdomain.ProviderRise) {
		t.Fatal("rise should not be registered")
	}

	impl, err := registry.Get(providerdomain.ProviderMock)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got, ok := impl.(*providermock.Provider); !ok || got != mock {
		t.Fatal("registry returned a different implementation")
	}
}

func TestRegistryRejectsUnknownProvider(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get(providerdomain.ProviderRise)
	if !errors.Is(err, providerdomain.ErrUnknownProvider) {
		t.Fatalf("expected unknown_provider, got %v", err)
	}
}
