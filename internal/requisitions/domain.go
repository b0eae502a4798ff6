package requisitions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ApprovalModule is the module name requisition history is recorded under.
const ApprovalModule = "requisitions"

// ListWindowDays is how far List looks forward from its start date.
const ListWindowDays = 30

// Gate names one of the three independent approval fields.
type Gate string

const (
	GateOperationsManager Gate = "operations_manager"
	GateFinance           Gate = "finance"
	GateDirector          Gate = "director"
)

// Gates lists every gate in display order.
var Gates = []Gate{GateOperationsManager, GateFinance, GateDirector}

// gateByRole is the fixed role to gate table. Roles absent here cannot act.
var gateByRole = map[rbac.Role]Gate{
	rbac.RoleOperationsManager: GateOperationsManager,
	rbac.RoleFinance:           GateFinance,
	rbac.RoleDirector:          GateDirector,
}

// GateFor returns the gate role controls.
func GateFor(role rbac.Role) (Gate, bool) {
	g, ok := gateByRole[role]
	return g, ok
}

// GateState is the value of one gate.
type GateState string

const (
	GatePending  GateState = "Pending"
	GateApproved GateState = "Approved"
	GateRejected GateState = "Rejected"
)

// Decision is an approver's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) state() (GateState, shared.ApprovalAction, bool) {
	switch d {
	case DecisionApprove:
		return GateApproved, shared.ApprovalApprove, true
	case DecisionReject:
		return GateRejected, shared.ApprovalReject, true
	}
	return "", "", false
}

// Status is derived from the submit history, the gates and the archive flag.
type Status string

const (
	StatusDraft    Status = "Draft"
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Requisition is a purchase request moving through three approval gates.
type Requisition struct {
	ID                int64                `json:"id"`
	Number            string               `json:"requisition_number"`
	RefID             uuid.UUID            `json:"ref_id"`
	UserID            int64                `json:"user_id"`
	OperationsManager GateState            `json:"operations_manager"`
	Finance           GateState            `json:"finance"`
	Director          GateState            `json:"director"`
	TotalPrice        decimal.Decimal      `json:"total_price"`
	IsArchived        bool                 `json:"is_archived"`
	Submitted         bool                 `json:"submitted"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	Items             []Item               `json:"items,omitempty"`
	History           []shared.ApprovalLog `json:"history,omitempty"`
}

// GateState returns the value of gate g.
func (r Requisition) GateState(g Gate) GateState {
	switch g {
	case GateOperationsManager:
		return r.OperationsManager
	case GateFinance:
		return r.Finance
	case GateDirector:
		return r.Director
	}
	return ""
}

func (r *Requisition) setGate(g Gate, state GateState) {
	switch g {
	case GateOperationsManager:
		r.OperationsManager = state
	case GateFinance:
		r.Finance = state
	case GateDirector:
		r.Director = state
	}
}

// FullyApproved reports whether every gate is Approved.
func (r Requisition) FullyApproved() bool {
	for _, g := range Gates {
		if r.GateState(g) != GateApproved {
			return false
		}
	}
	return true
}

// Rejected reports whether any gate is Rejected.
func (r Requisition) Rejected() bool {
	for _, g := range Gates {
		if r.GateState(g) == GateRejected {
			return true
		}
	}
	return false
}

// Status derives the overall state.
func (r Requisition) Status() Status {
	switch {
	case !r.Submitted:
		return StatusDraft
	case r.Rejected():
		return StatusRejected
	case r.FullyApproved():
		return StatusApproved
	}
	return StatusPending
}

// Item is one requested purchase. TotalPrice is Quantity x UnitPrice.
type Item struct {
	ID            int64           `json:"id"`
	RequisitionID int64           `json:"requisition_id"`
	Name          string          `json:"item_name"`
	Units         string          `json:"units,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Reason        string          `json:"reason,omitempty"`
	Comments      string          `json:"comments,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AddItemInput adds an item to the caller's draft.
type AddItemInput struct {
	Name      string
	Units     string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Reason    string
	Comments  string
}

// ActInput is an approver's decision on one requisition.
type ActInput struct {
	RequisitionID int64
	Decision      Decision
	Note          string
}

// ListResult is a window of requisitions with their grand total.
type ListResult struct {
	Requisitions []Requisition   `json:"requisitions"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
}

var (
	// ErrRequisitionNotFound indicates the requisition does not exist or is not visible to the caller.
	ErrRequisitionNotFound = fmt.Errorf("requisitions: requisition %w", shared.ErrNotFound)
	// ErrItemNotFound indicates the item is not on the caller's draft.
	ErrItemNotFound = fmt.Errorf("requisitions: item %w", shared.ErrNotFound)
	// ErrNoDraft indicates the caller has no draft to submit.
	ErrNoDraft = fmt.Errorf("requisitions: no draft to submit: %w", shared.ErrValidation)
	// ErrEmptyDraft indicates a submit of a draft without items.
	ErrEmptyDraft = fmt.Errorf("requisitions: draft has no items: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("requisitions: quantity must be greater than zero: %w", shared.ErrValidation)
	// ErrInvalidUnitPrice indicates a negative unit price.
	ErrInvalidUnitPrice = fmt.Errorf("requisitions: unit price must not be negative: %w", shared.ErrValidation)
	// ErrAlreadySubmitted indicates a second submit of the same requisition.
	ErrAlreadySubmitted = fmt.Errorf("requisitions: already submitted: %w", shared.ErrConflict)
	// ErrNotSubmitted indicates an approval attempt on a draft.
	ErrNotSubmitted = fmt.Errorf("requisitions: not submitted: %w", shared.ErrConflict)
	// ErrClosed indicates the requisition is archived or was rejected.
	ErrClosed = fmt.Errorf("requisitions: approval is closed: %w", shared.ErrConflict)
	// ErrGateResolved indicates the actor's gate already holds a decision.
	ErrGateResolved = fmt.Errorf("requisitions: gate already resolved: %w", shared.ErrConflict)
	// ErrNotApprover indicates a role that controls no gate.
	ErrNotApprover = fmt.Errorf("requisitions: role controls no approval gate: %w", shared.ErrAuthorization)
)
