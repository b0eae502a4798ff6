package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusStarted  Status = "Started"
	StatusReady    Status = "Ready"
	StatusCanceled Status = "Canceled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusCanceled
}

// Action drives a status transition.
type Action string

const (
	ActionStart  Action = "start"
	ActionReady  Action = "ready"
	ActionCancel Action = "cancel"
)

// transitions lists, per action, the statuses it may start from and where it
// leads.
var transitions = map[Action]struct {
	from []Status
	to   Status
}{
	ActionStart:  {from: []Status{StatusPending}, to: StatusStarted},
	ActionReady:  {from: []Status{StatusStarted}, to: StatusReady},
	ActionCancel: {from: []Status{StatusPending, StatusStarted}, to: StatusCanceled},
}

// Next returns the status reached by applying action to current.
func Next(current Status, action Action) (Status, error) {
	rule, ok := transitions[action]
	if !ok {
		return current, shared.Validationf("orders: unknown action %q", action)
	}
	for _, from := range rule.from {
		if from == current {
			return rule.to, nil
		}
	}
	return current, fmt.Errorf("%w: cannot %s an order that is %s", ErrInvalidTransition, action, current)
}

// Order is a placed order with its lines.
type Order struct {
	ID          int64           `json:"id"`
	Number      string          `json:"order_number"`
	Customer    string          `json:"customer,omitempty"`
	TableID     *int64          `json:"table_id,omitempty"`
	Status      Status          `json:"status"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Items       []Item          `json:"items,omitempty"`
}

// TimeTaken renders the time between start and completion as HH:MM:SS. It is
// empty until both are set.
func (o Order) TimeTaken() string {
	if o.StartedAt == nil || o.CompletedAt == nil {
		return ""
	}
	d := o.CompletedAt.Sub(*o.StartedAt)
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// Item is one order line. TotalPrice is UnitPrice x Quantity.
type Item struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	MenuItemID int64           `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// CartLine references a menu item by id or, when MenuItemID is zero, by exact
// name.
type CartLine struct {
	MenuItemID int64
	Name       string
	Quantity   int
}

func (l CartLine) label() string {
	if l.MenuItemID > 0 {
		return fmt.Sprintf("#%d", l.MenuItemID)
	}
	return fmt.Sprintf("%q", l.Name)
}

// PlaceInput is a cart submitted for placement.
type PlaceInput struct {
	Customer       string
	TableID        *int64
	Lines          []CartLine
	IdempotencyKey string
}

// Scope selects which orders List returns.
type Scope string

const (
	ScopeActive Scope = "active"
	ScopeAll    Scope = "all"
)

// ListFilter narrows List.
type ListFilter struct {
	Scope  Scope
	From   time.Time
	Period shared.Period
}

var (
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = fmt.Errorf("orders: order %w", shared.ErrNotFound)
	// ErrMenuItemNotFound indicates a cart line names no menu item.
	ErrMenuItemNotFound = fmt.Errorf("orders: menu item %w", shared.ErrNotFound)
	// ErrInvalidTransition indicates an action not allowed from the current status.
	ErrInvalidTransition = fmt.Errorf("orders: invalid status transition: %w", shared.ErrConflict)
	// ErrEmptyCart indicates an order without lines.
	ErrEmptyCart = fmt.Errorf("orders: cart is empty: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a cart line quantity below one.
	ErrInvalidQuantity = fmt.Errorf("orders: quantity must be a positive integer: %w", shared.ErrValidation)
)
