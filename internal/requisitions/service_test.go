package requisitions

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryState struct {
	reqs    map[int64]Requisition
	items   []Item
	history []shared.ApprovalLog
	counter int64
	nextID  int64
}

func (s memoryState) clone() memoryState {
	out := s
	out.reqs = make(map[int64]Requisition, len(s.reqs))
	for k, v := range s.reqs {
		out.reqs[k] = v
	}
	out.items = append([]Item(nil), s.items...)
	out.history = append([]shared.ApprovalLog(nil), s.history...)
	return out
}

// memoryRepo serialises transactions with a mutex, standing in for the row
// and advisory locks.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	now   time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{reqs: map[int64]Requisition{}},
		now:   time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) submitted(ref uuid.UUID) bool {
	for _, h := range r.state.history {
		if h.RefID == ref && h.Action == shared.ApprovalSubmit {
			return true
		}
	}
	return false
}

func (r *memoryRepo) load(id int64) (Requisition, bool) {
	req, ok := r.state.reqs[id]
	if !ok {
		return Requisition{}, false
	}
	req.Submitted = r.submitted(req.RefID)
	return req, true
}

func (r *memoryRepo) withDetails(req Requisition) Requisition {
	req.Items = nil
	for _, it := range r.state.items {
		if it.RequisitionID == req.ID {
			req.Items = append(req.Items, it)
		}
	}
	req.History = nil
	for _, h := range r.state.history {
		if h.RefID == req.RefID {
			req.History = append(req.History, h)
		}
	}
	return req
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.load(id)
	if !ok {
		return Requisition{}, ErrRequisitionNotFound
	}
	return r.withDetails(req), nil
}

func (r *memoryRepo) findDraft(userID int64) (Requisition, bool) {
	ids := r.sortedIDs()
	for _, id := range ids {
		req, _ := r.load(id)
		if req.UserID == userID && !req.IsArchived && !req.Submitted {
			return req, true
		}
	}
	return Requisition{}, false
}

func (r *memoryRepo) sortedIDs() []int64 {
	ids := make([]int64, 0, len(r.state.reqs))
	for id := range r.state.reqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *memoryRepo) Draft(_ context.Context, userID int64) (Requisition, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.findDraft(userID)
	if !ok {
		return Requisition{}, false, nil
	}
	return r.withDetails(req), true, nil
}

func (r *memoryRepo) List(_ context.Context, userID *int64, start, end time.Time) ([]Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Requisition
	for _, id := range r.sortedIDs() {
		req, _ := r.load(id)
		if userID != nil && req.UserID != *userID {
			continue
		}
		if req.CreatedAt.Before(start) || !req.CreatedAt.Before(end) {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (r *memoryRepo) Pending(_ context.Context) ([]Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Requisition
	for _, id := range r.sortedIDs() {
		req, _ := r.load(id)
		if req.Submitted && !req.IsArchived {
			out = append(out, req)
		}
	}
	return out, nil
}

type memoryTx struct{ repo *memoryRepo }

type memoryCounter struct{ repo *memoryRepo }

func (c memoryCounter) Next(_ context.Context, _ sequence.Domain) (int64, error) {
	c.repo.state.counter++
	return c.repo.state.counter, nil
}

func (tx *memoryTx) Counter() sequence.Counter { return memoryCounter{repo: tx.repo} }

func (tx *memoryTx) LockOwner(context.Context, int64) error { return nil }

func (tx *memoryTx) FindDraft(_ context.Context, userID int64) (Requisition, bool, error) {
	req, ok := tx.repo.findDraft(userID)
	return req, ok, nil
}

func (tx *memoryTx) InsertRequisition(_ context.Context, req Requisition) (Requisition, error) {
	tx.repo.state.nextID++
	req.ID = tx.repo.state.nextID
	req.OperationsManager, req.Finance, req.Director = GatePending, GatePending, GatePending
	req.TotalPrice = decimal.Zero
	req.CreatedAt, req.UpdatedAt = tx.repo.now, tx.repo.now
	tx.repo.state.reqs[req.ID] = req
	return req, nil
}

func (tx *memoryTx) LockRequisition(_ context.Context, id int64) (Requisition, error) {
	req, ok := tx.repo.load(id)
	if !ok {
		return Requisition{}, ErrRequisitionNotFound
	}
	return req, nil
}

func (tx *memoryTx) InsertItem(_ context.Context, it Item) (Item, error) {
	tx.repo.state.nextID++
	it.ID = tx.repo.state.nextID
	it.CreatedAt = tx.repo.now
	tx.repo.state.items = append(tx.repo.state.items, it)
	return it, nil
}

func (tx *memoryTx) DeleteItem(_ context.Context, requisitionID, itemID int64) error {
	for i, it := range tx.repo.state.items {
		if it.ID == itemID && it.RequisitionID == requisitionID {
			tx.repo.state.items = append(tx.repo.state.items[:i], tx.repo.state.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (tx *memoryTx) CountItems(_ context.Context, requisitionID int64) (int, error) {
	n := 0
	for _, it := range tx.repo.state.items {
		if it.RequisitionID == requisitionID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) RecomputeTotal(_ context.Context, requisitionID int64) (decimal.Decimal, error) {
	req, ok := tx.repo.state.reqs[requisitionID]
	if !ok {
		return decimal.Zero, ErrRequisitionNotFound
	}
	total := decimal.Zero
	for _, it := range tx.repo.state.items {
		if it.RequisitionID == requisitionID {
			total = total.Add(it.TotalPrice)
		}
	}
	req.TotalPrice = total
	tx.repo.state.reqs[requisitionID] = req
	return total, nil
}

func (tx *memoryTx) UpdateApproval(_ context.Context, req Requisition) error {
	stored, ok := tx.repo.state.reqs[req.ID]
	if !ok {
		return ErrRequisitionNotFound
	}
	stored.OperationsManager, stored.Finance, stored.Director = req.OperationsManager, req.Finance, req.Director
	stored.IsArchived = req.IsArchived
	tx.repo.state.reqs[req.ID] = stored
	return nil
}

func (tx *memoryTx) HasSubmit(_ context.Context, ref uuid.UUID) (bool, error) {
	return tx.repo.submitted(ref), nil
}

func (tx *memoryTx) RecordApproval(_ context.Context, log shared.ApprovalLog) (shared.ApprovalLog, error) {
	tx.repo.state.nextID++
	log.ID = tx.repo.state.nextID
	log.Module = ApprovalModule
	tx.repo.state.history = append(tx.repo.state.history, log)
	return log, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func as(userID int64, role string) context.Context {
	return shared.ContextWithActor(context.Background(), &shared.Actor{UserID: userID, Username: role, Role: role})
}

func newService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return repo.now }
	return svc
}

func submittedRequisition(t *testing.T, svc *Service) Requisition {
	t.Helper()
	ctx := as(7, "staff")
	_, _, err := svc.AddItem(ctx, AddItemInput{Name: "Flour", Units: "kg", Quantity: dec("10"), UnitPrice: dec("150")})
	require.NoError(t, err)
	_, _, err = svc.AddItem(ctx, AddItemInput{Name: "Oil", Units: "l", Quantity: dec("5"), UnitPrice: dec("200")})
	require.NoError(t, err)
	req, err := svc.Submit(ctx, 0, "weekly restock")
	require.NoError(t, err)
	return req
}

func TestDraftTotalsAndSubmit(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)

	req := submittedRequisition(t, svc)
	require.Equal(t, "REQ-0001", req.Number)
	require.Equal(t, "2500.00", req.TotalPrice.StringFixed(2))
	require.Equal(t, StatusPending, req.Status())
	require.Len(t, req.Items, 2)
	require.Len(t, req.History, 1)
	require.Equal(t, shared.ApprovalSubmit, req.History[0].Action)
	require.Equal(t, shared.ApprovalRef(ApprovalModule, 1), req.RefID)

	// the next edit opens a fresh draft
	draft, err := svc.GetOrCreateDraft(as(7, "staff"))
	require.NoError(t, err)
	require.Equal(t, "REQ-0002", draft.Number)
	require.True(t, draft.TotalPrice.IsZero())
	require.Equal(t, StatusDraft, draft.Status())
}

func TestGetOrCreateDraftReusesDraft(t *testing.T) {
	svc := newService(newMemoryRepo())
	ctx := as(7, "staff")

	first, err := svc.GetOrCreateDraft(ctx)
	require.NoError(t, err)
	second, err := svc.GetOrCreateDraft(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	other, err := svc.GetOrCreateDraft(as(8, "staff"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

func TestConcurrentAddItemsShareOneDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := as(7, "staff")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.AddItem(ctx, AddItemInput{Name: "Salt", Quantity: dec("1"), UnitPrice: dec("10")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, repo.state.reqs, 1)
	draft, found, err := repo.Draft(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "80.00", draft.TotalPrice.StringFixed(2))
}

func TestAddItemValidation(t *testing.T) {
	svc := newService(newMemoryRepo())
	ctx := as(7, "staff")

	_, _, err := svc.AddItem(ctx, AddItemInput{Name: "Flour", Quantity: dec("0"), UnitPrice: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.AddItem(ctx, AddItemInput{Name: "Flour", Quantity: dec("1"), UnitPrice: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.AddItem(ctx, AddItemInput{Name: "  ", Quantity: dec("1"), UnitPrice: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.AddItem(context.Background(), AddItemInput{Name: "Flour", Quantity: dec("1"), UnitPrice: dec("1")})
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestAddItemRejectsAmountsPastColumnScale(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := as(7, "staff")

	// 0.335 x 3 would total 1.01 while the stored 0.34 price implies 1.02
	_, _, err := svc.AddItem(ctx, AddItemInput{Name: "Yeast", Quantity: dec("3"), UnitPrice: dec("0.335")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.AddItem(ctx, AddItemInput{Name: "Yeast", Quantity: dec("0.0004"), UnitPrice: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.state.items)

	_, item, err := svc.AddItem(ctx, AddItemInput{Name: "Yeast", Quantity: dec("0.500"), UnitPrice: dec("1.50")})
	require.NoError(t, err)
	require.Equal(t, "0.75", item.TotalPrice.StringFixed(2))
}

func TestRemoveItemRecomputesTotal(t *testing.T) {
	svc := newService(newMemoryRepo())
	ctx := as(7, "staff")

	_, flour, err := svc.AddItem(ctx, AddItemInput{Name: "Flour", Quantity: dec("2.5"), UnitPrice: dec("3.33")})
	require.NoError(t, err)
	require.Equal(t, "8.33", flour.TotalPrice.StringFixed(2))
	req, _, err := svc.AddItem(ctx, AddItemInput{Name: "Sugar", Quantity: dec("1"), UnitPrice: dec("4")})
	require.NoError(t, err)
	require.Equal(t, "12.33", req.TotalPrice.StringFixed(2))

	req, err = svc.RemoveItem(ctx, flour.ID)
	require.NoError(t, err)
	require.Equal(t, "4.00", req.TotalPrice.StringFixed(2))
	require.Len(t, req.Items, 1)

	_, err = svc.RemoveItem(ctx, flour.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmitErrors(t *testing.T) {
	svc := newService(newMemoryRepo())
	ctx := as(7, "staff")

	_, err := svc.Submit(ctx, 0, "")
	require.ErrorIs(t, err, ErrNoDraft)

	draft, err := svc.GetOrCreateDraft(ctx)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, draft.ID, "")
	require.ErrorIs(t, err, ErrEmptyDraft)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.AddItem(ctx, AddItemInput{Name: "Flour", Quantity: dec("1"), UnitPrice: dec("1")})
	require.NoError(t, err)
	_, err = svc.Submit(as(9, "staff"), draft.ID, "")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Submit(ctx, draft.ID, "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, draft.ID, "")
	require.ErrorIs(t, err, ErrAlreadySubmitted)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestArchivedOnlyAfterAllGatesApprove(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	req := submittedRequisition(t, svc)

	req, err := svc.Act(as(20, "finance"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, GateApproved, req.Finance)
	require.False(t, req.IsArchived)

	req, err = svc.Act(as(21, "director"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove})
	require.NoError(t, err)
	require.False(t, req.IsArchived)

	pending, err := svc.PendingQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	req, err = svc.Act(as(22, "operations_manager"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove, Note: "ok"})
	require.NoError(t, err)
	require.True(t, req.IsArchived)
	require.Equal(t, StatusApproved, req.Status())
	require.Len(t, req.History, 4)
	require.Equal(t, string(GateOperationsManager), req.History[3].Field)
	require.Equal(t, "ok", req.History[3].Note)

	pending, err = svc.PendingQueue(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)

	_, err = svc.Act(as(20, "finance"), ActInput{RequisitionID: req.ID, Decision: DecisionReject})
	require.ErrorIs(t, err, ErrClosed)
}

func TestActConflictsAndAuthorization(t *testing.T) {
	svc := newService(newMemoryRepo())
	req := submittedRequisition(t, svc)

	_, err := svc.Act(as(20, "finance"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove})
	require.NoError(t, err)
	_, err = svc.Act(as(23, "finance"), ActInput{RequisitionID: req.ID, Decision: DecisionReject})
	require.ErrorIs(t, err, ErrGateResolved)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Act(as(7, "staff"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove})
	require.ErrorIs(t, err, shared.ErrAuthorization)
	_, err = svc.Act(as(1, "admin"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrNotApprover)

	_, err = svc.Act(as(21, "director"), ActInput{RequisitionID: req.ID, Decision: "maybe"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Act(as(21, "director"), ActInput{RequisitionID: 999, Decision: DecisionApprove})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestActOnDraftIsConflict(t *testing.T) {
	svc := newService(newMemoryRepo())
	draft, _, err := svc.AddItem(as(7, "staff"), AddItemInput{Name: "Flour", Quantity: dec("1"), UnitPrice: dec("1")})
	require.NoError(t, err)

	_, err = svc.Act(as(21, "director"), ActInput{RequisitionID: draft.ID, Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrNotSubmitted)
}

func TestRejectionClosesWithoutArchiving(t *testing.T) {
	svc := newService(newMemoryRepo())
	req := submittedRequisition(t, svc)

	req, err := svc.Act(as(21, "director"), ActInput{RequisitionID: req.ID, Decision: DecisionReject, Note: "over budget"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, req.Status())
	require.False(t, req.IsArchived)
	require.Equal(t, GatePending, req.Finance)

	_, err = svc.Act(as(20, "finance"), ActInput{RequisitionID: req.ID, Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrClosed)

	stored, err := svc.Get(as(7, "staff"), req.ID)
	require.NoError(t, err)
	require.Equal(t, GatePending, stored.Finance)
	require.Len(t, stored.History, 2)
}

func TestListScopesAndGrandTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	submittedRequisition(t, svc)
	_, _, err := svc.AddItem(as(8, "staff"), AddItemInput{Name: "Eggs", Quantity: dec("30"), UnitPrice: dec("2.5")})
	require.NoError(t, err)

	own, err := svc.List(as(8, "staff"), time.Time{})
	require.NoError(t, err)
	require.Len(t, own.Requisitions, 1)
	require.Equal(t, "75.00", own.GrandTotal.StringFixed(2))
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), own.From)
	require.Equal(t, time.Date(2024, 4, 9, 0, 0, 0, 0, time.UTC), own.To)

	all, err := svc.List(as(20, "finance"), time.Time{})
	require.NoError(t, err)
	require.Len(t, all.Requisitions, 2)
	require.Equal(t, "2575.00", all.GrandTotal.StringFixed(2))

	later, err := svc.List(as(20, "finance"), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Empty(t, later.Requisitions)
	require.True(t, later.GrandTotal.IsZero())
}

func TestGetHidesOtherUsersRequisitions(t *testing.T) {
	svc := newService(newMemoryRepo())
	req := submittedRequisition(t, svc)

	_, err := svc.Get(as(8, "staff"), req.ID)
	require.ErrorIs(t, err, ErrRequisitionNotFound)

	got, err := svc.Get(as(21, "director"), req.ID)
	require.NoError(t, err)
	require.Equal(t, req.Number, got.Number)
}
