package gateway

import (
	"testing"

	domainErrors "github.com/carenet/payments/internal/domain/errors"
	"github.com/carenet/payments/internal/domain/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Get(t *testing.T) {
	bkash := NewMockProvider(transaction.ProviderBkash, nil)
	nagad := NewMockProvider(transaction.ProviderNagad, nil)
	registry := NewRegistry(bkash, nagad)

	p, breaker, err := registry.Get(transaction.ProviderBkash)
	require.NoError(t, err)
	assert.Equal(t, transaction.ProviderBkash, p.Name())
	assert.NotNil(t, breaker)

	p, _, err = registry.Get(transaction.ProviderNagad)
	require.NoError(t, err)
	assert.Equal(t, transaction.ProviderNagad, p.Name())
}

func TestRegistry_GetUnknown(t *testing.T) {
	registry := NewRegistry(NewMockProvider(transaction.ProviderBkash, nil))

	_, _, err := registry.Get(transaction.Provider("stripe"))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidProvider)
}

func TestRegistry_ProvidersOrder(t *testing.T) {
	registry := NewRegistry(
		NewMockProvider(transaction.ProviderBkash, nil),
		NewMockProvider(transaction.ProviderNagad, nil),
	)

	assert.Equal(t,
		[]transaction.Provider{transaction.ProviderBkash, transaction.ProviderNagad},
		registry.Providers())
}

func TestRegistry_SeparateBreakers(t *testing.T) {
	registry := NewRegistry(
		NewMockProvider(transaction.ProviderBkash, nil),
		NewMockProvider(transaction.ProviderNagad, nil),
	)

	_, b1, err := registry.Get(transaction.ProviderBkash)
	require.NoError(t, err)
	_, b2, err := registry.Get(transaction.ProviderNagad)
	require.NoError(t, err)
	assert.NotSame(t, b1, b2)
}
