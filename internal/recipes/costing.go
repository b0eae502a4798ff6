package recipes

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Cost derives a recipe's total cost and selling price from its ingredients'
// captured prices. Both values are rounded to cents half away from zero; the
// selling price is computed from the rounded total.
func Cost(ingredients []Ingredient, profitPercentage decimal.Decimal) (total, selling decimal.Decimal) {
	total = decimal.Zero
	for _, ing := range ingredients {
		total = total.Add(ing.LineCost())
	}
	total = total.Round(2)
	multiplier := decimal.NewFromInt(1).Add(profitPercentage.Div(hundred))
	selling = total.Mul(multiplier).Round(2)
	return total, selling
}
