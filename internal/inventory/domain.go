package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ChangeKind classifies a ledger entry.
type ChangeKind string

const (
	// ChangeAdded records new stock (creation, restock).
	ChangeAdded ChangeKind = "Added"
	// ChangeUsed records consumption by orders or recipes.
	ChangeUsed ChangeKind = "Used"
	// ChangeAdjusted records a manual correction.
	ChangeAdjusted ChangeKind = "Adjusted"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeAdded, ChangeUsed, ChangeAdjusted:
		return true
	}
	return false
}

// StockItem is an on-hand ingredient or supply.
type StockItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Units     string          `json:"units"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Value returns quantity x unit price rounded to cents.
func (s StockItem) Value() decimal.Decimal {
	return s.Quantity.Mul(s.UnitPrice).Round(2)
}

// HistoryEntry is an immutable ledger record. Quantity is the signed change.
type HistoryEntry struct {
	ID        int64           `json:"id"`
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name,omitempty"`
	Units     string          `json:"units"`
	Kind      ChangeKind      `json:"change_kind"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// Requirement is an amount of one stock item to be consumed.
type Requirement struct {
	ItemID   int64
	Quantity decimal.Decimal
}

// CreateItemInput registers a new stock item.
type CreateItemInput struct {
	Name      string
	Units     string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// AdjustInput sets an item's quantity and optionally its price and units.
type AdjustInput struct {
	ItemID    int64
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
	Units     *string
	Reason    string
}

// ConsumeInput removes stock.
type ConsumeInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	Reason   string
}

// RestockInput adds stock at a new unit price.
type RestockInput struct {
	ItemID    int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Reason    string
}

// HistoryFilter narrows ListHistory.
type HistoryFilter struct {
	ItemID int64
	Kind   ChangeKind
	From   time.Time
	To     time.Time
	Limit  int
}

// ItemList is the stock sheet with its valuation.
type ItemList struct {
	Items      []StockItem     `json:"items"`
	TotalValue decimal.Decimal `json:"total_value"`
}

var (
	// ErrItemNotFound indicates the stock item does not exist.
	ErrItemNotFound = fmt.Errorf("inventory: stock item %w", shared.ErrNotFound)
	// ErrDuplicateItem indicates the name is taken.
	ErrDuplicateItem = fmt.Errorf("inventory: stock item name already exists: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a quantity out of range or with more than
	// three decimal places.
	ErrInvalidQuantity = fmt.Errorf("inventory: invalid quantity: %w", shared.ErrValidation)
	// ErrInvalidUnitPrice indicates a negative price or one with more than two
	// decimal places.
	ErrInvalidUnitPrice = fmt.Errorf("inventory: invalid unit price: %w", shared.ErrValidation)
)
