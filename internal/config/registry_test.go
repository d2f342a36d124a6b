package config

import (
	"errors"
	"slices"
	"testing"

	"github.com/costlens/costlens/pkg/provider/llm"
	llmmock "github.com/costlens/costlens/pkg/provider/llm/mock"
)

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	want := &llmmock.Provider{}
	r.Register("fake", func(cfg ModelConfig) (llm.Provider, error) {
		if cfg.Name != "fake-model" {
			t.Errorf("factory received model %q", cfg.Name)
		}
		return want, nil
	})

	got, err := r.Create(ModelConfig{Provider: "fake", Name: "fake-model"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got != want {
		t.Error("Create returned a different provider instance")
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := NewRegistry().Create(ModelConfig{Provider: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("Create = %v, want ErrProviderNotRegistered", err)
	}
}

func TestDefaultRegistry_CoversValidProviders(t *testing.T) {
	names := DefaultRegistry().Names()
	for _, want := range ValidModelProviders {
		if !slices.Contains(names, want) {
			t.Errorf("default registry missing %q", want)
		}
	}
}
