package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Consume removes every requirement from stock inside tx and appends one Used
// entry per stock item. Requirements naming the same item are merged first.
// Rows are locked in ascending id order and checked against the locked
// quantity, so the check here is the authoritative one. Nothing is written
// unless every item has enough.
func Consume(ctx context.Context, tx TxRepository, reqs []Requirement, reason string) ([]HistoryEntry, error) {
	merged, ids, err := mergeRequirements(reqs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	locked, err := tx.LockItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock items: %w", err)
	}
	byID := make(map[int64]StockItem, len(locked))
	for _, item := range locked {
		byID[item.ID] = item
	}
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrItemNotFound, id)
		}
		if need := merged[id]; need.GreaterThan(item.Quantity) {
			return nil, &shared.InsufficientStockError{
				ItemID:    item.ID,
				Item:      item.Name,
				Requested: need,
				Available: item.Quantity,
			}
		}
	}
	entries := make([]HistoryEntry, 0, len(ids))
	for _, id := range ids {
		item := byID[id]
		need := merged[id]
		item.Quantity = item.Quantity.Sub(need)
		if err := tx.UpdateItem(ctx, item); err != nil {
			return nil, err
		}
		entry, err := tx.InsertHistory(ctx, HistoryEntry{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Units:     item.Units,
			Kind:      ChangeUsed,
			Quantity:  need,
			UnitPrice: item.UnitPrice,
			Reason:    reason,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MergeRequirements sums requirements per stock item. The result is ordered by
// item id.
func MergeRequirements(reqs []Requirement) ([]Requirement, error) {
	merged, ids, err := mergeRequirements(reqs)
	if err != nil {
		return nil, err
	}
	out := make([]Requirement, 0, len(ids))
	for _, id := range ids {
		out = append(out, Requirement{ItemID: id, Quantity: merged[id]})
	}
	return out, nil
}

func mergeRequirements(reqs []Requirement) (map[int64]decimal.Decimal, []int64, error) {
	merged := make(map[int64]decimal.Decimal, len(reqs))
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		if req.ItemID <= 0 {
			return nil, nil, fmt.Errorf("%w: id %d", ErrItemNotFound, req.ItemID)
		}
		if !req.Quantity.IsPositive() || !shared.FitsPlaces(req.Quantity, shared.QuantityPlaces) {
			return nil, nil, ErrInvalidQuantity
		}
		current, seen := merged[req.ItemID]
		if !seen {
			ids = append(ids, req.ItemID)
		}
		merged[req.ItemID] = current.Add(req.Quantity)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return merged, ids, nil
}

func lockOne(ctx context.Context, tx TxRepository, id int64) (StockItem, error) {
	items, err := tx.LockItems(ctx, []int64{id})
	if err != nil {
		return StockItem{}, fmt.Errorf("inventory: lock item: %w", err)
	}
	if len(items) == 0 {
		return StockItem{}, ErrItemNotFound
	}
	return items[0], nil
}
