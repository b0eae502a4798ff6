package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (StockItem, error)
	ListItems(ctx context.Context) ([]StockItem, error)
	ListBelow(ctx context.Context, threshold decimal.Decimal) ([]StockItem, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateItem registers a stock item and records its opening balance.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (StockItem, HistoryEntry, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return StockItem{}, HistoryEntry{}, shared.Validationf("inventory: name required")
	}
	if input.Quantity.IsNegative() || !shared.FitsPlaces(input.Quantity, shared.QuantityPlaces) {
		return StockItem{}, HistoryEntry{}, ErrInvalidQuantity
	}
	if input.UnitPrice.IsNegative() || !shared.FitsPlaces(input.UnitPrice, shared.MoneyPlaces) {
		return StockItem{}, HistoryEntry{}, ErrInvalidUnitPrice
	}
	var (
		item  StockItem
		entry HistoryEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.InsertItem(ctx, StockItem{
			Name:      name,
			Units:     strings.TrimSpace(input.Units),
			Quantity:  input.Quantity,
			UnitPrice: input.UnitPrice,
		})
		if err != nil {
			return err
		}
		entry, err = tx.InsertHistory(ctx, HistoryEntry{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Units:     item.Units,
			Kind:      ChangeAdded,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Reason:    "New item added",
		})
		return err
	})
	if err != nil {
		return StockItem{}, HistoryEntry{}, err
	}
	s.record(ctx, "inventory:create", item.ID, map[string]any{"name": item.Name, "quantity": item.Quantity.String()})
	return item, entry, nil
}

// Adjust overwrites an item's quantity (and optionally price and units). An
// increase is recorded as Added, a decrease or price change as Adjusted, each
// with the signed quantity delta. When neither quantity nor price changes no
// entry is written and the returned entry is nil.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (StockItem, *HistoryEntry, error) {
	if input.Quantity.IsNegative() || !shared.FitsPlaces(input.Quantity, shared.QuantityPlaces) {
		return StockItem{}, nil, ErrInvalidQuantity
	}
	if input.UnitPrice != nil && (input.UnitPrice.IsNegative() || !shared.FitsPlaces(*input.UnitPrice, shared.MoneyPlaces)) {
		return StockItem{}, nil, ErrInvalidUnitPrice
	}
	var (
		item  StockItem
		entry *HistoryEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = lockOne(ctx, tx, input.ItemID)
		if err != nil {
			return err
		}
		price := item.UnitPrice
		if input.UnitPrice != nil {
			price = *input.UnitPrice
		}
		delta := input.Quantity.Sub(item.Quantity)
		changed := !delta.IsZero() || !price.Equal(item.UnitPrice)
		if input.Units != nil {
			item.Units = strings.TrimSpace(*input.Units)
		}
		item.Quantity = input.Quantity
		item.UnitPrice = price
		if !changed && input.Units == nil {
			return nil
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		kind := ChangeAdjusted
		if delta.IsPositive() {
			kind = ChangeAdded
		}
		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = "Inventory adjusted"
		}
		recorded, err := tx.InsertHistory(ctx, HistoryEntry{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Units:     item.Units,
			Kind:      kind,
			Quantity:  delta,
			UnitPrice: price,
			Reason:    reason,
		})
		if err != nil {
			return err
		}
		entry = &recorded
		return nil
	})
	if err != nil {
		return StockItem{}, nil, err
	}
	if entry != nil {
		s.record(ctx, "inventory:adjust", item.ID, map[string]any{"delta": entry.Quantity.String(), "kind": string(entry.Kind)})
	}
	return item, entry, nil
}

// Consume removes quantity from one item.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (HistoryEntry, error) {
	if !input.Quantity.IsPositive() || !shared.FitsPlaces(input.Quantity, shared.QuantityPlaces) {
		return HistoryEntry{}, ErrInvalidQuantity
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "Manual usage"
	}
	var entry HistoryEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, err := Consume(ctx, tx, []Requirement{{ItemID: input.ItemID, Quantity: input.Quantity}}, reason)
		if err != nil {
			return err
		}
		entry = entries[0]
		return nil
	})
	if err != nil {
		return HistoryEntry{}, err
	}
	s.record(ctx, "inventory:consume", input.ItemID, map[string]any{"quantity": input.Quantity.String(), "reason": reason})
	return entry, nil
}

// Restock adds quantity and replaces the unit price.
func (s *Service) Restock(ctx context.Context, input RestockInput) (StockItem, HistoryEntry, error) {
	if !input.Quantity.IsPositive() || !shared.FitsPlaces(input.Quantity, shared.QuantityPlaces) {
		return StockItem{}, HistoryEntry{}, ErrInvalidQuantity
	}
	if input.UnitPrice.IsNegative() || !shared.FitsPlaces(input.UnitPrice, shared.MoneyPlaces) {
		return StockItem{}, HistoryEntry{}, ErrInvalidUnitPrice
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "Restocked"
	}
	var (
		item  StockItem
		entry HistoryEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = lockOne(ctx, tx, input.ItemID)
		if err != nil {
			return err
		}
		item.Quantity = item.Quantity.Add(input.Quantity)
		item.UnitPrice = input.UnitPrice
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		entry, err = tx.InsertHistory(ctx, HistoryEntry{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Units:     item.Units,
			Kind:      ChangeAdded,
			Quantity:  input.Quantity,
			UnitPrice: input.UnitPrice,
			Reason:    reason,
		})
		return err
	})
	if err != nil {
		return StockItem{}, HistoryEntry{}, err
	}
	s.record(ctx, "inventory:restock", item.ID, map[string]any{"quantity": input.Quantity.String(), "unit_price": input.UnitPrice.String()})
	return item, entry, nil
}

// GetItem returns one stock item.
func (s *Service) GetItem(ctx context.Context, id int64) (StockItem, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns the stock sheet with its total valuation.
func (s *Service) ListItems(ctx context.Context) (ItemList, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return ItemList{}, err
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Value())
	}
	return ItemList{Items: items, TotalValue: total}, nil
}

// LowStock returns items below threshold.
func (s *Service) LowStock(ctx context.Context, threshold decimal.Decimal) ([]StockItem, error) {
	return s.repo.ListBelow(ctx, threshold)
}

// ListHistory returns ledger entries newest first. A filter with only From
// covers one day.
func (s *Service) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, shared.Validationf("inventory: unknown change kind %q", filter.Kind)
	}
	if !filter.From.IsZero() && filter.To.IsZero() {
		filter.To = filter.From.Add(24 * time.Hour)
	}
	if !filter.From.IsZero() && !filter.To.After(filter.From) {
		return nil, shared.Validationf("inventory: history window end must follow its start")
	}
	return s.repo.ListHistory(ctx, filter)
}

func (s *Service) record(ctx context.Context, action string, itemID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor := shared.ActorFromContext(ctx); actor != nil {
		actorID = actor.UserID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("inventory audit", slog.String("action", action), slog.Any("error", fmt.Errorf("item %d: %w", itemID, err)))
	}
}
