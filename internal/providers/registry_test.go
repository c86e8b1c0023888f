package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/providers/providertest"
)

func TestRegistry_ResolveKnownProvider(t *testing.T) {
	r := providers.NewRegistry()
	mock := providertest.NewEcho("mock", "R")
	r.Register(mock)

	p, err := r.Resolve("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}

func TestRegistry_UnknownDriverFails(t *testing.T) {
	r := providers.NewRegistry()
	_, err := r.Resolve("nonexistent")
	require.ErrorIs(t, err, providers.ErrProviderNotConfigured)
}

func TestRegistry_Names(t *testing.T) {
	r := providers.NewRegistry()
	r.Register(providertest.NewEcho("a", "x"))
	r.Register(providertest.NewEcho("b", "y"))
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}
