package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		value    int64
		currency string
		wantErr  bool
	}{
		{name: "valid amount", value: 150000, currency: "BDT"},
		{name: "empty currency defaults to BDT", value: 100, currency: ""},
		{name: "zero amount", value: 0, currency: "BDT", wantErr: true},
		{name: "negative amount", value: -500, currency: "BDT", wantErr: true},
		{name: "unsupported currency", value: 100, currency: "USD", wantErr: true},
		{name: "malformed currency", value: 100, currency: "taka", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.value, tt.currency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, a.Value)
			assert.Equal(t, "BDT", a.Currency)
		})
	}
}

func TestAmount_String(t *testing.T) {
	a := Amount{Value: 150050, Currency: "BDT"}
	assert.Equal(t, "1500.50 BDT", a.String())
}

func TestMajorMinorConversion(t *testing.T) {
	assert.Equal(t, int64(150000), FromMajor(1500.00))
	assert.Equal(t, int64(1999), FromMajor(19.99))
	assert.Equal(t, int64(1), FromMajor(0.01))
	assert.Equal(t, 1500.00, ToMajor(150000))
	assert.Equal(t, 19.99, ToMajor(1999))

	// round trip over amounts with two decimal places
	for _, v := range []float64{0.01, 10.10, 1234.56, 99999.99} {
		assert.Equal(t, v, ToMajor(FromMajor(v)))
	}
}
