package shared

import "github.com/shopspring/decimal"

// Column scales of stored amounts.
const (
	MoneyPlaces    int32 = 2
	QuantityPlaces int32 = 3
)

// FitsPlaces reports whether d has no significant digits past places. 1.500
// fits two places; 0.335 does not.
func FitsPlaces(d decimal.Decimal, places int32) bool {
	if d.Exponent() >= -places {
		return true
	}
	return d.Equal(d.Truncate(places))
}

// CheckMoney rejects amounts with more than two decimal places.
func CheckMoney(field string, d decimal.Decimal) error {
	if !FitsPlaces(d, MoneyPlaces) {
		return Validationf("%s must have at most %d decimal places", field, MoneyPlaces)
	}
	return nil
}

// CheckQuantity rejects quantities with more than three decimal places.
func CheckQuantity(field string, d decimal.Decimal) error {
	if !FitsPlaces(d, QuantityPlaces) {
		return Validationf("%s must have at most %d decimal places", field, QuantityPlaces)
	}
	return nil
}
