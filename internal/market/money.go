package market

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency enums.Currency  `json:"currency"`
}

// NewMoney validates the amount and currency.
func NewMoney(amount decimal.Decimal, currency enums.Currency) (Money, error) {
	m := Money{Amount: amount, Currency: currency}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func (m Money) Validate() error {
	if !m.Currency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", m.Currency)
	}
	if m.Amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if places := m.Currency.MinorUnits(); !m.Amount.Equal(m.Amount.Truncate(places)) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s amounts allow at most %d decimal places", m.Currency, places)
	}
	return nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

func (m Money) String() string {
	return m.Amount.StringFixed(m.Currency.MinorUnits()) + " " + m.Currency.String()
}
