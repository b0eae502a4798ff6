package recipes

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// DefaultProfitPercentage applies when a recipe is created without one.
var DefaultProfitPercentage = decimal.NewFromInt(20)

// Recipe is a costed dish. TotalCost and SellingPrice are derived by Recompute.
type Recipe struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Description      string          `json:"description,omitempty"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	SellingPrice     decimal.Decimal `json:"selling_price"`
	Ingredients      []Ingredient    `json:"ingredients,omitempty"`
	MenuItemID       *int64          `json:"menu_item_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Ingredient is a stock item used by a recipe at a captured unit price.
type Ingredient struct {
	ID            int64           `json:"id"`
	RecipeID      int64           `json:"recipe_id"`
	StockItemID   int64           `json:"stock_item_id"`
	StockItemName string          `json:"stock_item_name,omitempty"`
	Units         string          `json:"units,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// LineCost is quantity x captured unit price.
func (i Ingredient) LineCost() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// IngredientInput adds an ingredient. A nil UnitPrice captures the stock
// item's current price.
type IngredientInput struct {
	StockItemID int64
	Quantity    decimal.Decimal
	UnitPrice   *decimal.Decimal
}

// CreateInput creates a recipe.
type CreateInput struct {
	Name             string
	Category         string
	Description      string
	ProfitPercentage *decimal.Decimal
	Ingredients      []IngredientInput
}

// UpdateInput edits recipe attributes.
type UpdateInput struct {
	ID               int64
	Name             string
	Category         string
	Description      string
	ProfitPercentage decimal.Decimal
}

// ListFilter narrows List by creation date.
type ListFilter struct {
	From   time.Time
	Period shared.Period
}

var (
	// ErrRecipeNotFound indicates the recipe does not exist.
	ErrRecipeNotFound = fmt.Errorf("recipes: recipe %w", shared.ErrNotFound)
	// ErrIngredientNotFound indicates the ingredient is not part of the recipe.
	ErrIngredientNotFound = fmt.Errorf("recipes: ingredient %w", shared.ErrNotFound)
	// ErrDuplicateRecipe indicates the name is taken.
	ErrDuplicateRecipe = fmt.Errorf("recipes: name already exists: %w", shared.ErrConflict)
	// ErrRecipeOrdered indicates the linked menu item has orders.
	ErrRecipeOrdered = fmt.Errorf("recipes: menu item of this recipe has orders: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a non-positive ingredient quantity.
	ErrInvalidQuantity = fmt.Errorf("recipes: ingredient quantity must be greater than zero: %w", shared.ErrValidation)
	// ErrInvalidProfit indicates a negative profit percentage.
	ErrInvalidProfit = fmt.Errorf("recipes: profit percentage must not be negative: %w", shared.ErrValidation)
)
