package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	items   map[int64]StockItem
	history []HistoryEntry
	nextID  int64
	audits  []shared.AuditLog
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]StockItem)}
}

func (r *memoryRepo) seed(name string, qty, price string) StockItem {
	r.nextID++
	item := StockItem{ID: r.nextID, Name: name, Units: "kg", Quantity: decimal.RequireFromString(qty), UnitPrice: decimal.RequireFromString(price)}
	r.items[item.ID] = item
	return item
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	items := make(map[int64]StockItem, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	history := append([]HistoryEntry(nil), r.history...)
	nextID := r.nextID
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.items, r.history, r.nextID = items, history, nextID
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(_ context.Context, id int64) (StockItem, error) {
	item, ok := r.items[id]
	if !ok {
		return StockItem{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) ListItems(context.Context) ([]StockItem, error) {
	out := make([]StockItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListBelow(_ context.Context, threshold decimal.Decimal) ([]StockItem, error) {
	var out []StockItem
	for _, item := range r.items {
		if item.Quantity.LessThan(threshold) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListHistory(_ context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for i := len(r.history) - 1; i >= 0; i-- {
		e := r.history[i]
		if filter.ItemID != 0 && e.ItemID != filter.ItemID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) Record(_ context.Context, log shared.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

func (tx *memoryTx) InsertItem(_ context.Context, item StockItem) (StockItem, error) {
	for _, existing := range tx.repo.items {
		if strings.EqualFold(existing.Name, item.Name) {
			return StockItem{}, ErrDuplicateItem
		}
	}
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.repo.items[item.ID] = item
	return item, nil
}

func (tx *memoryTx) LockItems(_ context.Context, ids []int64) ([]StockItem, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var out []StockItem
	for _, id := range sorted {
		if item, ok := tx.repo.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (tx *memoryTx) UpdateItem(_ context.Context, item StockItem) error {
	if _, ok := tx.repo.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, entry HistoryEntry) (HistoryEntry, error) {
	entry.ID = int64(len(tx.repo.history) + 1)
	entry.CreatedAt = time.Now().UTC()
	tx.repo.history = append(tx.repo.history, entry)
	return entry, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateItemRecordsAddedEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, repo, nil)

	item, entry, err := svc.CreateItem(context.Background(), CreateItemInput{Name: "Flour", Units: "kg", Quantity: dec("10"), UnitPrice: dec("120.50")})
	require.NoError(t, err)
	require.Equal(t, ChangeAdded, entry.Kind)
	require.True(t, entry.Quantity.Equal(dec("10")))
	require.Equal(t, "New item added", entry.Reason)
	require.Equal(t, item.ID, entry.ItemID)
	require.Len(t, repo.history, 1)
	require.Len(t, repo.audits, 1)

	_, _, err = svc.CreateItem(context.Background(), CreateItemInput{Name: "Flour", Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, repo.history, 1)
}

func TestCreateItemRejectsNegativeQuantity(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, _, err := svc.CreateItem(context.Background(), CreateItemInput{Name: "Salt", Quantity: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAdjustDirectionSelectsKind(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Rice", "10", "100")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	updated, entry, err := svc.Adjust(ctx, AdjustInput{ItemID: item.ID, Quantity: dec("14")})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, ChangeAdded, entry.Kind)
	require.True(t, entry.Quantity.Equal(dec("4")))
	require.True(t, updated.Quantity.Equal(dec("14")))

	_, entry, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, Quantity: dec("9.5")})
	require.NoError(t, err)
	require.Equal(t, ChangeAdjusted, entry.Kind)
	require.True(t, entry.Quantity.Equal(dec("-4.5")))

	price := dec("110")
	_, entry, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, Quantity: dec("9.5"), UnitPrice: &price})
	require.NoError(t, err)
	require.Equal(t, ChangeAdjusted, entry.Kind)
	require.True(t, entry.Quantity.IsZero())
	require.True(t, entry.UnitPrice.Equal(price))
	require.Len(t, repo.history, 3)
}

func TestAdjustWithoutChangeWritesNothing(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Rice", "10", "100")
	svc := NewService(repo, nil, nil)

	_, entry, err := svc.Adjust(context.Background(), AdjustInput{ItemID: item.ID, Quantity: dec("10.000")})
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Empty(t, repo.history)
}

func TestAdjustRejectsNegativeQuantity(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Rice", "10", "100")
	svc := NewService(repo, nil, nil)

	_, _, err := svc.Adjust(context.Background(), AdjustInput{ItemID: item.ID, Quantity: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, repo.items[item.ID].Quantity.Equal(dec("10")))
}

func TestConsumeUsesCurrentUnitPrice(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Milk", "5", "80")
	svc := NewService(repo, nil, nil)

	entry, err := svc.Consume(context.Background(), ConsumeInput{ItemID: item.ID, Quantity: dec("2"), Reason: "spoiled"})
	require.NoError(t, err)
	require.Equal(t, ChangeUsed, entry.Kind)
	require.True(t, entry.UnitPrice.Equal(dec("80")))
	require.True(t, repo.items[item.ID].Quantity.Equal(dec("3")))
}

func TestMutationsRejectDigitsPastColumnScale(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Saffron", "10", "80")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// 0.0004 would be stored as a zero entry while the item stays at 10
	_, err := svc.Consume(ctx, ConsumeInput{ItemID: item.ID, Quantity: dec("0.0004")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = svc.Restock(ctx, RestockInput{ItemID: item.ID, Quantity: dec("1"), UnitPrice: dec("0.335")})
	require.ErrorIs(t, err, ErrInvalidUnitPrice)
	_, _, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, Quantity: dec("9.9995")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = svc.CreateItem(ctx, CreateItemInput{Name: "Vanilla", Quantity: dec("1"), UnitPrice: dec("0.335")})
	require.ErrorIs(t, err, ErrInvalidUnitPrice)

	require.True(t, repo.items[item.ID].Quantity.Equal(dec("10")))
	require.Len(t, repo.items, 1)
	require.Empty(t, repo.history)

	_, err = svc.Consume(ctx, ConsumeInput{ItemID: item.ID, Quantity: dec("0.0010")})
	require.NoError(t, err)
	require.True(t, repo.items[item.ID].Quantity.Equal(dec("9.999")))
}

func TestConsumeInsufficientNamesItemAndShortfall(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Milk", "1.5", "80")
	svc := NewService(repo, nil, nil)

	_, err := svc.Consume(context.Background(), ConsumeInput{ItemID: item.ID, Quantity: dec("2")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, "Milk", stockErr.Item)
	require.True(t, stockErr.Shortfall().Equal(dec("0.5")))
	require.True(t, repo.items[item.ID].Quantity.Equal(dec("1.5")))
	require.Empty(t, repo.history)
}

func TestConsumeUnknownItem(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Consume(context.Background(), ConsumeInput{ItemID: 42, Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRestockReplacesPrice(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.seed("Oil", "2", "300")
	svc := NewService(repo, nil, nil)

	updated, entry, err := svc.Restock(context.Background(), RestockInput{ItemID: item.ID, Quantity: dec("3"), UnitPrice: dec("320")})
	require.NoError(t, err)
	require.True(t, updated.Quantity.Equal(dec("5")))
	require.True(t, updated.UnitPrice.Equal(dec("320")))
	require.Equal(t, ChangeAdded, entry.Kind)
	require.True(t, entry.Quantity.Equal(dec("3")))
}

func TestEveryMutationPairsWithOneEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, _, err := svc.CreateItem(ctx, CreateItemInput{Name: "Sugar", Quantity: dec("10"), UnitPrice: dec("50")})
	require.NoError(t, err)
	_, _, err = svc.Restock(ctx, RestockInput{ItemID: item.ID, Quantity: dec("5"), UnitPrice: dec("55")})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ConsumeInput{ItemID: item.ID, Quantity: dec("3")})
	require.NoError(t, err)
	_, _, err = svc.Adjust(ctx, AdjustInput{ItemID: item.ID, Quantity: dec("11")})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ConsumeInput{ItemID: item.ID, Quantity: dec("100")})
	require.Error(t, err)

	require.Len(t, repo.history, 4)
	want := []ChangeKind{ChangeAdded, ChangeAdded, ChangeUsed, ChangeAdjusted}
	balance := decimal.Zero
	for i, entry := range repo.history {
		require.Equal(t, want[i], entry.Kind)
		if entry.Kind == ChangeUsed {
			balance = balance.Sub(entry.Quantity)
		} else {
			balance = balance.Add(entry.Quantity)
		}
	}
	require.True(t, balance.Equal(repo.items[item.ID].Quantity))
}

func TestLedgerConsumeMergesAndIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	a := repo.seed("Tomato", "5", "10")
	b := repo.seed("Onion", "1", "5")
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := Consume(ctx, tx, []Requirement{
			{ItemID: a.ID, Quantity: dec("2")},
			{ItemID: b.ID, Quantity: dec("0.6")},
			{ItemID: b.ID, Quantity: dec("0.6")},
		}, "Order ORD-0001")
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, repo.items[a.ID].Quantity.Equal(dec("5")))
	require.Empty(t, repo.history)

	var entries []HistoryEntry
	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = Consume(ctx, tx, []Requirement{
			{ItemID: b.ID, Quantity: dec("0.5")},
			{ItemID: a.ID, Quantity: dec("2")},
			{ItemID: b.ID, Quantity: dec("0.5")},
		}, "Order ORD-0002")
		return err
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, a.ID, entries[0].ItemID)
	require.True(t, entries[1].Quantity.Equal(dec("1")))
	require.True(t, repo.items[b.ID].Quantity.IsZero())
}

func TestListItemsValuation(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("Butter", "2", "150.25")
	repo.seed("Eggs", "30", "12")
	svc := NewService(repo, nil, nil)

	list, err := svc.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	require.Equal(t, "Butter", list.Items[0].Name)
	require.True(t, list.TotalValue.Equal(dec("660.50")))
}

func TestListHistoryRejectsUnknownKind(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.ListHistory(context.Background(), HistoryFilter{Kind: "Stolen"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMergeRequirementsRejectsNonPositive(t *testing.T) {
	_, err := MergeRequirements([]Requirement{{ItemID: 1, Quantity: decimal.Zero}})
	require.ErrorIs(t, err, shared.ErrValidation)

	merged, err := MergeRequirements([]Requirement{{ItemID: 3, Quantity: dec("1")}, {ItemID: 1, Quantity: dec("2")}, {ItemID: 3, Quantity: dec("0.25")}})
	require.NoError(t, err)
	require.Len(t, merged, 2)
	require.Equal(t, int64(1), merged[0].ItemID)
	require.True(t, merged[1].Quantity.Equal(dec("1.25")))
}
