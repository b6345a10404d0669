package money

import (
	"fmt"

	"github.com/carenet/payments/internal/domain/errors"
)

// DefaultCurrency is the only currency the gateways settle in.
const DefaultCurrency = "BDT"

var supportedCurrencies = map[string]bool{
	DefaultCurrency: true,
}

// Amount represents a monetary amount in the smallest currency unit
// (poisha for BDT).
type Amount struct {
	Value    int64
	Currency string
}

// New builds a validated amount. An empty currency defaults to BDT.
func New(value int64, currency string) (Amount, error) {
	if currency == "" {
		currency = DefaultCurrency
	}
	a := Amount{Value: value, Currency: currency}
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.Value / 100
	frac := a.Value % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is positive and the currency supported.
func (a Amount) Validate() error {
	if a.Value <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if a.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	if len(a.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	if !supportedCurrencies[a.Currency] {
		return errors.NewValidationError("currency", "unsupported currency "+a.Currency)
	}
	return nil
}

// FromMajor converts a major-unit amount (taka) to minor units (poisha).
// JSON DTOs carry major units; everything internal is int64 minor units.
func FromMajor(v float64) int64 {
	if v >= 0 {
		return int64(v*100 + 0.5)
	}
	return int64(v*100 - 0.5)
}

// ToMajor converts minor units back to a major-unit float for DTOs.
func ToMajor(v int64) float64 {
	return float64(v) / 100
}
