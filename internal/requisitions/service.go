package requisitions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Requisition, error)
	Draft(ctx context.Context, userID int64) (Requisition, bool, error)
	List(ctx context.Context, userID *int64, start, end time.Time) ([]Requisition, error)
	Pending(ctx context.Context) ([]Requisition, error)
}

// Service runs the requisition draft and approval workflow. The draft of a
// user is never stored as such: it is the user's requisition that has no
// submit entry and is not archived.
type Service struct {
	repo   RepositoryPort
	rbac   *rbac.Service
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, rbacSvc *rbac.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rbacSvc == nil {
		rbacSvc = rbac.NewService()
	}
	return &Service{repo: repo, rbac: rbacSvc, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func currentActor(ctx context.Context) (*shared.Actor, error) {
	actor := shared.ActorFromContext(ctx)
	if actor == nil || actor.UserID == 0 {
		return nil, shared.ErrUnauthenticated
	}
	return actor, nil
}

// GetOrCreateDraft returns the caller's draft, creating an empty one when none
// exists.
func (s *Service) GetOrCreateDraft(ctx context.Context) (Requisition, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Requisition{}, err
	}
	if draft, found, err := s.repo.Draft(ctx, actor.UserID); err != nil || found {
		return draft, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft, err := s.lockDraft(ctx, tx, actor.UserID)
		id = draft.ID
		return err
	})
	if err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

// lockDraft returns the user's locked draft, creating it if needed. Concurrent
// callers for one user are serialised so at most one draft exists.
func (s *Service) lockDraft(ctx context.Context, tx TxRepository, userID int64) (Requisition, error) {
	if err := tx.LockOwner(ctx, userID); err != nil {
		return Requisition{}, err
	}
	draft, found, err := tx.FindDraft(ctx, userID)
	if err != nil || found {
		return draft, err
	}
	n, err := tx.Counter().Next(ctx, sequence.Requisitions)
	if err != nil {
		return Requisition{}, fmt.Errorf("requisitions: number: %w", err)
	}
	draft, err = tx.InsertRequisition(ctx, Requisition{
		Number: sequence.Format(sequence.Requisitions, n),
		RefID:  shared.ApprovalRef(ApprovalModule, n),
		UserID: userID,
	})
	if err != nil {
		return Requisition{}, err
	}
	s.logger.Info("requisition draft created", slog.String("requisition_number", draft.Number), slog.Int64("user_id", userID))
	return draft, nil
}

// AddItem appends an item to the caller's draft and recomputes its total.
func (s *Service) AddItem(ctx context.Context, input AddItemInput) (Requisition, Item, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Requisition{}, Item{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Requisition{}, Item{}, shared.Validationf("requisitions: item name required")
	}
	if !input.Quantity.IsPositive() {
		return Requisition{}, Item{}, ErrInvalidQuantity
	}
	if input.UnitPrice.IsNegative() {
		return Requisition{}, Item{}, ErrInvalidUnitPrice
	}
	if err := shared.CheckQuantity("requisitions: quantity", input.Quantity); err != nil {
		return Requisition{}, Item{}, err
	}
	if err := shared.CheckMoney("requisitions: unit price", input.UnitPrice); err != nil {
		return Requisition{}, Item{}, err
	}
	var (
		id   int64
		item Item
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft, err := s.lockDraft(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		id = draft.ID
		item, err = tx.InsertItem(ctx, Item{
			RequisitionID: draft.ID,
			Name:          name,
			Units:         strings.TrimSpace(input.Units),
			Quantity:      input.Quantity,
			UnitPrice:     input.UnitPrice,
			TotalPrice:    input.Quantity.Mul(input.UnitPrice).Round(2),
			Reason:        strings.TrimSpace(input.Reason),
			Comments:      strings.TrimSpace(input.Comments),
		})
		if err != nil {
			return err
		}
		_, err = tx.RecomputeTotal(ctx, draft.ID)
		return err
	})
	if err != nil {
		return Requisition{}, Item{}, err
	}
	req, err := s.repo.Get(ctx, id)
	return req, item, err
}

// RemoveItem deletes an item from the caller's draft and recomputes its total.
func (s *Service) RemoveItem(ctx context.Context, itemID int64) (Requisition, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Requisition{}, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockOwner(ctx, actor.UserID); err != nil {
			return err
		}
		draft, found, err := tx.FindDraft(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if !found {
			return ErrItemNotFound
		}
		id = draft.ID
		if err := tx.DeleteItem(ctx, draft.ID, itemID); err != nil {
			return err
		}
		_, err = tx.RecomputeTotal(ctx, draft.ID)
		return err
	})
	if err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

// Submit freezes a draft into the approval queue. A zero requisitionID submits
// the caller's current draft; otherwise ownership and draft state of the
// given requisition are checked under its row lock.
func (s *Service) Submit(ctx context.Context, requisitionID int64, note string) (Requisition, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Requisition{}, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var req Requisition
		if requisitionID == 0 {
			if err := tx.LockOwner(ctx, actor.UserID); err != nil {
				return err
			}
			draft, found, err := tx.FindDraft(ctx, actor.UserID)
			if err != nil {
				return err
			}
			if !found {
				return ErrNoDraft
			}
			req = draft
		} else {
			locked, err := tx.LockRequisition(ctx, requisitionID)
			if err != nil {
				return err
			}
			if locked.UserID != actor.UserID {
				return ErrRequisitionNotFound
			}
			if locked.IsArchived {
				return ErrClosed
			}
			req = locked
		}
		// The lock may have been waited for; read the history again.
		submitted, err := tx.HasSubmit(ctx, req.RefID)
		if err != nil {
			return err
		}
		if submitted {
			return fmt.Errorf("%w: %s", ErrAlreadySubmitted, req.Number)
		}
		n, err := tx.CountItems(ctx, req.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEmptyDraft
		}
		if _, err := tx.RecordApproval(ctx, shared.ApprovalLog{
			RefID:   req.RefID,
			ActorID: actor.UserID,
			Action:  shared.ApprovalSubmit,
			Note:    strings.TrimSpace(note),
			At:      s.now(),
		}); err != nil {
			return err
		}
		id = req.ID
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	s.logger.Info("requisition submitted", slog.String("requisition_number", req.Number), slog.String("total", req.TotalPrice.StringFixed(2)))
	return req, nil
}

// Act records the caller's decision on the gate their role controls. Full
// approval archives the requisition in the same transaction. A rejection
// closes the requisition to further decisions but leaves it unarchived.
func (s *Service) Act(ctx context.Context, input ActInput) (Requisition, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Requisition{}, err
	}
	role, _ := rbac.ParseRole(actor.Role)
	gate, ok := GateFor(role)
	if !ok {
		return Requisition{}, ErrNotApprover
	}
	state, action, ok := input.Decision.state()
	if !ok {
		return Requisition{}, shared.Validationf("requisitions: unknown decision %q", input.Decision)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.LockRequisition(ctx, input.RequisitionID)
		if err != nil {
			return err
		}
		if !req.Submitted {
			return fmt.Errorf("%w: %s", ErrNotSubmitted, req.Number)
		}
		if req.IsArchived || req.Rejected() {
			return fmt.Errorf("%w: %s is %s", ErrClosed, req.Number, req.Status())
		}
		if current := req.GateState(gate); current != GatePending {
			return fmt.Errorf("%w: %s gate of %s is %s", ErrGateResolved, gate, req.Number, current)
		}
		req.setGate(gate, state)
		if req.FullyApproved() {
			req.IsArchived = true
		}
		if err := tx.UpdateApproval(ctx, req); err != nil {
			return err
		}
		_, err = tx.RecordApproval(ctx, shared.ApprovalLog{
			RefID:   req.RefID,
			ActorID: actor.UserID,
			Action:  action,
			Field:   string(gate),
			Note:    strings.TrimSpace(input.Note),
			At:      s.now(),
		})
		return err
	})
	if err != nil {
		return Requisition{}, err
	}
	req, err := s.repo.Get(ctx, input.RequisitionID)
	if err != nil {
		return Requisition{}, err
	}
	s.logger.Info("requisition gate decided",
		slog.String("requisition_number", req.Number),
		slog.String("gate", string(gate)),
		slog.String("decision", string(input.Decision)),
		slog.Bool("archived", req.IsArchived))
	return req, nil
}

func (s *Service) canViewAll(actor *shared.Actor) bool {
	role, ok := rbac.ParseRole(actor.Role)
	return ok && s.rbac.Can(role, rbac.PermRequisitionsViewAll)
}

// List returns the requisitions created in the 30 days starting at from
// (today when zero) with their grand total. Callers without view-all see only
// their own.
func (s *Service) List(ctx context.Context, from time.Time) (ListResult, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return ListResult{}, err
	}
	if from.IsZero() {
		from = s.now()
	}
	start, _ := shared.PeriodDaily.Window(from)
	end := start.AddDate(0, 0, ListWindowDays)
	var owner *int64
	if !s.canViewAll(actor) {
		owner = &actor.UserID
	}
	reqs, err := s.repo.List(ctx, owner, start, end)
	if err != nil {
		return ListResult{}, err
	}
	total := decimal.Zero
	for _, r := range reqs {
		total = total.Add(r.TotalPrice)
	}
	return ListResult{Requisitions: reqs, GrandTotal: total, From: start, To: end}, nil
}

// PendingQueue returns submitted requisitions that are not archived.
func (s *Service) PendingQueue(ctx context.Context) ([]Requisition, error) {
	return s.repo.Pending(ctx)
}

// Get returns a requisition with items and history. Other users' requisitions
// are reported as not found unless the caller may view all.
func (s *Service) Get(ctx context.Context, id int64) (Requisition, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return Requisition{}, err
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if req.UserID != actor.UserID && !s.canViewAll(actor) {
		return Requisition{}, ErrRequisitionNotFound
	}
	return req, nil
}
