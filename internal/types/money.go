// README: Common money value object used across modules.
package types

// Money holds an amount in the currency's smallest practical unit. Fares
// and order amounts are whole-unit values, so no decimal scaling applies.
type Money struct {
	Amount   int64
	Currency string
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}
