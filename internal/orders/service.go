package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/menu"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/tables"
)

const idempotencyModule = "orders"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, statuses []Status, start, end time.Time) ([]Order, error)
}

// MenuPort resolves cart lines into sellable menu items.
type MenuPort interface {
	Resolve(ctx context.Context, ids []int64, names []string) ([]menu.Sellable, error)
}

// StockPort reads current stock for the advisory pre-check.
type StockPort interface {
	GetItems(ctx context.Context, ids []int64) (map[int64]inventory.StockItem, error)
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// ReportInvalidator drops cached report figures once sales change.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Observer receives order events for metrics.
type Observer interface {
	OrderPlaced()
	OrderTransitioned(status string)
	StockShortfall(phase string)
}

type noopObserver struct{}

func (noopObserver) OrderPlaced()             {}
func (noopObserver) OrderTransitioned(string) {}
func (noopObserver) StockShortfall(string)    {}

// Service places orders and moves them through their lifecycle.
type Service struct {
	repo     RepositoryPort
	menu     MenuPort
	stock    StockPort
	idem     IdempotencyPort
	reports  ReportInvalidator
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, menu MenuPort, stock StockPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		menu:     menu,
		stock:    stock,
		observer: noopObserver{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithIdempotency enables Idempotency-Key handling on PlaceOrder.
func (s *Service) WithIdempotency(store IdempotencyPort) *Service {
	s.idem = store
	return s
}

// WithReports registers the report cache to invalidate on completed orders.
func (s *Service) WithReports(reports ReportInvalidator) *Service {
	s.reports = reports
	return s
}

// WithObserver registers metrics hooks.
func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.observer = o
	}
	return s
}

type plannedLine struct {
	item     menu.Sellable
	quantity int
}

// PlaceOrder validates the cart against current stock, then creates the order,
// its lines and the stock consumption in one transaction. The pre-check only
// reads stock; the locked check inside the transaction decides.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceInput) (Order, error) {
	if err := validCart(input); err != nil {
		return Order{}, err
	}
	lines, reqs, err := s.plan(ctx, input.Lines)
	if err != nil {
		return Order{}, err
	}
	if err := s.precheck(ctx, reqs); err != nil {
		return Order{}, err
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idem != nil {
		if err := s.idem.Claim(ctx, idempotencyModule, key); err != nil {
			return Order{}, err
		}
	}

	order, err := s.commit(ctx, input, lines, reqs)
	if err != nil {
		if key != "" && s.idem != nil {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), idempotencyModule, key); relErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", relErr))
			}
		}
		var shortage *shared.InsufficientStockError
		if errors.As(err, &shortage) {
			s.observer.StockShortfall("commit")
		}
		return Order{}, err
	}
	s.observer.OrderPlaced()
	s.logger.Info("order placed",
		slog.String("order_number", order.Number),
		slog.Int("lines", len(order.Items)),
		slog.String("total", order.TotalPrice.StringFixed(2)))
	return order, nil
}

func validCart(input PlaceInput) error {
	if len(input.Lines) == 0 {
		return ErrEmptyCart
	}
	for i, line := range input.Lines {
		if line.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if line.MenuItemID <= 0 && strings.TrimSpace(line.Name) == "" {
			return shared.Validationf("orders: line %d names no menu item", i+1)
		}
	}
	if input.TableID != nil && *input.TableID <= 0 {
		return tables.ErrTableNotFound
	}
	return nil
}

// plan resolves every cart line and aggregates what the whole cart consumes per
// stock item.
func (s *Service) plan(ctx context.Context, cart []CartLine) ([]plannedLine, []inventory.Requirement, error) {
	var (
		ids   []int64
		names []string
	)
	for _, line := range cart {
		if line.MenuItemID > 0 {
			ids = append(ids, line.MenuItemID)
		} else {
			names = append(names, strings.TrimSpace(line.Name))
		}
	}
	resolved, err := s.menu.Resolve(ctx, ids, names)
	if err != nil {
		return nil, nil, fmt.Errorf("orders: resolve menu items: %w", err)
	}
	byID := make(map[int64]menu.Sellable, len(resolved))
	byName := make(map[string]menu.Sellable, len(resolved))
	for _, item := range resolved {
		byID[item.ID] = item
		if _, taken := byName[item.Name]; !taken {
			byName[item.Name] = item
		}
	}

	lines := make([]plannedLine, 0, len(cart))
	var reqs []inventory.Requirement
	for _, line := range cart {
		var (
			item menu.Sellable
			ok   bool
		)
		if line.MenuItemID > 0 {
			item, ok = byID[line.MenuItemID]
		} else {
			item, ok = byName[strings.TrimSpace(line.Name)]
		}
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMenuItemNotFound, line.label())
		}
		lines = append(lines, plannedLine{item: item, quantity: line.Quantity})
		qty := decimal.NewFromInt(int64(line.Quantity))
		for _, need := range item.Needs {
			reqs = append(reqs, inventory.Requirement{ItemID: need.StockItemID, Quantity: need.Quantity.Mul(qty)})
		}
	}
	merged, err := inventory.MergeRequirements(reqs)
	if err != nil {
		return nil, nil, err
	}
	return lines, merged, nil
}

func (s *Service) precheck(ctx context.Context, reqs []inventory.Requirement) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ItemID)
	}
	stock, err := s.stock.GetItems(ctx, ids)
	if err != nil {
		return fmt.Errorf("orders: read stock: %w", err)
	}
	for _, req := range reqs {
		item, ok := stock[req.ItemID]
		if !ok {
			return fmt.Errorf("%w: id %d", inventory.ErrItemNotFound, req.ItemID)
		}
		if req.Quantity.GreaterThan(item.Quantity) {
			s.observer.StockShortfall("validate")
			return &shared.InsufficientStockError{
				ItemID:    item.ID,
				Item:      item.Name,
				Requested: req.Quantity,
				Available: item.Quantity,
			}
		}
	}
	return nil
}

func (s *Service) commit(ctx context.Context, input PlaceInput, lines []plannedLine, reqs []inventory.Requirement) (Order, error) {
	var createdBy int64
	if actor := shared.ActorFromContext(ctx); actor != nil {
		createdBy = actor.UserID
	}
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.TableID != nil {
			if _, err := tx.Tables().Get(ctx, *input.TableID); err != nil {
				return err
			}
		}
		number, err := sequence.Number(ctx, tx.Counter(), sequence.Orders)
		if err != nil {
			return fmt.Errorf("orders: number: %w", err)
		}
		order, err = tx.InsertOrder(ctx, Order{
			Number:     number,
			Customer:   strings.TrimSpace(input.Customer),
			TableID:    input.TableID,
			Status:     StatusPending,
			TotalPrice: decimal.Zero,
			CreatedBy:  createdBy,
		})
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, line := range lines {
			qty := decimal.NewFromInt(int64(line.quantity))
			item, err := tx.InsertItem(ctx, Item{
				OrderID:    order.ID,
				MenuItemID: line.item.ID,
				Name:       line.item.Name,
				Quantity:   line.quantity,
				UnitPrice:  line.item.Price,
				TotalPrice: line.item.Price.Mul(qty).Round(2),
			})
			if err != nil {
				return err
			}
			order.Items = append(order.Items, item)
			total = total.Add(item.TotalPrice)
		}
		order.TotalPrice = total
		if err := tx.UpdateTotal(ctx, order.ID, total); err != nil {
			return err
		}
		if _, err := inventory.Consume(ctx, tx.Stock(), reqs, "Used for order "+number); err != nil {
			return err
		}
		if input.TableID != nil {
			if _, err := tx.Tables().SetOccupied(ctx, *input.TableID, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// Transition applies action to an order. Ready and cancel free the order's
// table.
func (s *Service) Transition(ctx context.Context, id int64, action Action) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		next, err := Next(order.Status, action)
		if err != nil {
			return err
		}
		now := s.now()
		order.Status = next
		if next == StatusStarted {
			order.StartedAt = &now
		} else {
			order.CompletedAt = &now
		}
		if err := tx.UpdateStatus(ctx, order); err != nil {
			return err
		}
		if next.Terminal() && order.TableID != nil {
			if _, err := tx.Tables().SetOccupied(ctx, *order.TableID, false); err != nil && !errors.Is(err, tables.ErrTableNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.observer.OrderTransitioned(string(order.Status))
	if order.Status.Terminal() && s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.String("order_number", order.Number), slog.Any("error", err))
		}
	}
	s.logger.Info("order transitioned", slog.String("order_number", order.Number), slog.String("status", string(order.Status)))
	return s.repo.Get(ctx, id)
}

// Get returns one order with its items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns active (Pending or Started) or all orders, optionally within
// the period starting at filter.From.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	var statuses []Status
	switch filter.Scope {
	case "", ScopeActive:
		statuses = []Status{StatusPending, StatusStarted}
	case ScopeAll:
	default:
		return nil, shared.Validationf("orders: unknown scope %q", filter.Scope)
	}
	if filter.From.IsZero() {
		return s.repo.List(ctx, statuses, time.Time{}, time.Time{})
	}
	period := filter.Period
	if period == "" {
		period = shared.PeriodWeekly
	}
	start, end := period.Window(filter.From)
	return s.repo.List(ctx, statuses, start, end)
}
