// Package reports aggregates sales and inventory spend over a date window.
package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopN bounds the popular-item and ingredient-usage rankings.
const TopN = 5

// DefaultLookbackDays is where a window starts when no start date is given.
const DefaultLookbackDays = 30

// PopularItem is a menu item ranked by quantity sold.
type PopularItem struct {
	MenuItemID int64  `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
}

// IngredientUsage is a stock item ranked by quantity consumed.
type IngredientUsage struct {
	ItemID   int64           `json:"item_id"`
	Name     string          `json:"name"`
	Units    string          `json:"units"`
	Quantity decimal.Decimal `json:"quantity"`
}

// DailyPoint is one day of the sales and expense series.
type DailyPoint struct {
	Day      time.Time       `json:"day"`
	Sales    decimal.Decimal `json:"sales"`
	Expenses decimal.Decimal `json:"expenses"`
}

// Summary is the report for one window. Sales count Ready orders only and
// expenses are valued from Used ledger entries.
type Summary struct {
	Type             string            `json:"type"`
	From             time.Time         `json:"from"`
	To               time.Time         `json:"to"`
	TotalSales       decimal.Decimal   `json:"total_sales"`
	InventoryExpense decimal.Decimal   `json:"inventory_expense"`
	NetProfit        decimal.Decimal   `json:"net_profit"`
	TotalOrders      int64             `json:"total_orders"`
	PopularItems     []PopularItem     `json:"popular_items"`
	IngredientUsage  []IngredientUsage `json:"ingredient_usage"`
	Daily            []DailyPoint      `json:"daily"`
}

// DayAmount is a per-day total read from storage.
type DayAmount struct {
	Day    time.Time
	Amount decimal.Decimal
}
