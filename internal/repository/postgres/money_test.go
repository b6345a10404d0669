package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericStringToPoisha_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"whole taka", "100", 10000},
		{"taka with poisha", "100.50", 10050},
		{"poisha only", "0.99", 99},
		{"zero", "0", 0},
		{"zero with decimals", "0.00", 0},
		{"small amount", "1.23", 123},
		{"large amount", "9999.99", 999999},
		{"rounding needed", "99.999", 10000},
		{"rounding down", "99.994", 9999},
		{"with whitespace", "  50.25  ", 5025},
		{"negative amount", "-10.50", -1050},
		{"single decimal", "5.5", 550},
		{"three decimals", "5.555", 556},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := numericStringToPoisha(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNumericStringToPoisha_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"invalid format", "abc"},
		{"special characters", "৳100.00"},
		{"multiple decimals", "10.5.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := numericStringToPoisha(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestPoishaToNumericString_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{"whole taka", 10000, "100.00"},
		{"taka with poisha", 10050, "100.50"},
		{"poisha only", 99, "0.99"},
		{"zero", 0, "0.00"},
		{"small amount", 123, "1.23"},
		{"large amount", 999999, "9999.99"},
		{"negative amount", -1050, "-10.50"},
		{"negative poisha", -99, "-0.99"},
		{"single poisha", 1, "0.01"},
		{"ten poisha", 10, "0.10"},
		{"exact taka", 5000, "50.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := poishaToNumericString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMoneyConversion_RoundTrip(t *testing.T) {
	// Converting poisha -> string -> poisha must produce the same value
	tests := []int64{
		0,
		1,
		10,
		100,
		999,
		1000,
		10000,
		12345,
		999999,
		-100,
		-12345,
	}

	for _, original := range tests {
		t.Run("roundtrip", func(t *testing.T) {
			str := poishaToNumericString(original)
			poisha, err := numericStringToPoisha(str)
			require.NoError(t, err)
			assert.Equal(t, original, poisha, "poisha=%d, str=%s, back=%d", original, str, poisha)
		})
	}
}

func TestMoneyConversion_EdgeCases(t *testing.T) {
	t.Run("very large amount", func(t *testing.T) {
		poisha := int64(999999999999)
		str := poishaToNumericString(poisha)
		back, err := numericStringToPoisha(str)
		require.NoError(t, err)
		assert.Equal(t, poisha, back)
	})

	t.Run("very small negative", func(t *testing.T) {
		poisha := int64(-1)
		str := poishaToNumericString(poisha)
		assert.Equal(t, "-0.01", str)
	})
}
