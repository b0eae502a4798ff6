package menu

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Source tells who owns a menu item ingredient row.
type Source string

const (
	// SourceRecipe rows mirror the linked recipe and are rewritten by Sync.
	SourceRecipe Source = "recipe"
	// SourceDirect rows are maintained by hand through SetIngredients.
	SourceDirect Source = "direct"
)

// MinimumPrice is the floor applied to recipe-derived prices.
var MinimumPrice = decimal.New(1, -2)

// MenuItem is a sellable product.
type MenuItem struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	RecipeID    *int64          `json:"recipe_id,omitempty"`
	Ingredients []Ingredient    `json:"ingredients,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Linked reports whether the item's price and mirror come from a recipe.
func (m MenuItem) Linked() bool {
	return m.RecipeID != nil
}

// Ingredient is one stock requirement of a menu item.
type Ingredient struct {
	ID             int64           `json:"id"`
	StockItemID    int64           `json:"stock_item_id"`
	StockItemName  string          `json:"stock_item_name,omitempty"`
	Units          string          `json:"units,omitempty"`
	QuantityNeeded decimal.Decimal `json:"quantity_needed"`
	Source         Source          `json:"source"`
}

// IngredientLine is requested input for an ingredient row.
type IngredientLine struct {
	StockItemID int64
	Quantity    decimal.Decimal
}

// Need is the per-unit stock consumption of a menu item.
type Need struct {
	StockItemID int64
	Quantity    decimal.Decimal
}

// Sellable is a menu item resolved for ordering, with everything one unit
// consumes: the linked recipe's ingredients plus the item's direct rows.
type Sellable struct {
	MenuItem
	Needs []Need
}

// RecipeSource carries what Sync needs from a recipe.
type RecipeSource struct {
	RecipeID     int64
	Name         string
	Category     string
	SellingPrice decimal.Decimal
	Ingredients  []IngredientLine
}

// CreateItemInput creates a standalone menu item.
type CreateItemInput struct {
	Name        string
	Category    string
	Price       decimal.Decimal
	Ingredients []IngredientLine
}

// UpdateItemInput edits a menu item. Price must be nil for linked items.
type UpdateItemInput struct {
	ID       int64
	Name     string
	Category string
	Price    *decimal.Decimal
}

var (
	// ErrItemNotFound indicates the menu item does not exist.
	ErrItemNotFound = fmt.Errorf("menu: item %w", shared.ErrNotFound)
	// ErrStockItemNotFound indicates an ingredient references a missing stock item.
	ErrStockItemNotFound = fmt.Errorf("menu: stock item %w", shared.ErrNotFound)
	// ErrLinkedPrice indicates an attempt to price a recipe-linked item by hand.
	ErrLinkedPrice = fmt.Errorf("menu: price of a recipe-linked item follows the recipe: %w", shared.ErrValidation)
	// ErrInvalidPrice indicates a non-positive standalone price.
	ErrInvalidPrice = fmt.Errorf("menu: price must be greater than zero: %w", shared.ErrValidation)
	// ErrItemOrdered indicates the item is referenced by existing orders.
	ErrItemOrdered = fmt.Errorf("menu: item has orders and cannot be deleted: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a non-positive ingredient quantity.
	ErrInvalidQuantity = fmt.Errorf("menu: ingredient quantity must be greater than zero: %w", shared.ErrValidation)
)
