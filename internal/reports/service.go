package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts the report queries.
type RepositoryPort interface {
	Sales(ctx context.Context, start, end time.Time) (decimal.Decimal, int64, error)
	Expense(ctx context.Context, start, end time.Time) (decimal.Decimal, error)
	PopularItems(ctx context.Context, start, end time.Time, limit int) ([]PopularItem, error)
	IngredientUsage(ctx context.Context, start, end time.Time, limit int) ([]IngredientUsage, error)
	DailySales(ctx context.Context, start, end time.Time) ([]DayAmount, error)
	DailyExpenses(ctx context.Context, start, end time.Time) ([]DayAmount, error)
}

// Service builds report summaries through the cache.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a repository with a cache. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Invalidate drops every cached summary.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

// Window resolves the report window. A zero from starts DefaultLookbackDays
// ago.
func (s *Service) Window(from time.Time, period shared.Period) (time.Time, time.Time) {
	if from.IsZero() {
		from = s.now().AddDate(0, 0, -DefaultLookbackDays)
	}
	return period.Window(from.UTC())
}

// Summary returns the report for the window of period starting at from.
func (s *Service) Summary(ctx context.Context, from time.Time, period shared.Period) (Summary, error) {
	start, end := s.Window(from, period)
	key, err := s.cache.BuildKey(ctx, "summary", string(period), start.Format("2006-01-02"))
	if err != nil {
		return Summary{}, err
	}
	var out Summary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.compute(ctx, period, start, end)
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) compute(ctx context.Context, period shared.Period, start, end time.Time) (Summary, error) {
	out := Summary{Type: string(period), From: start, To: end}
	var sales, expenses []DayAmount

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, count, err := s.repo.Sales(ctx, start, end)
		out.TotalSales, out.TotalOrders = total, count
		return err
	})
	g.Go(func() error {
		total, err := s.repo.Expense(ctx, start, end)
		out.InventoryExpense = total
		return err
	})
	g.Go(func() error {
		items, err := s.repo.PopularItems(ctx, start, end, TopN)
		out.PopularItems = items
		return err
	})
	g.Go(func() error {
		usage, err := s.repo.IngredientUsage(ctx, start, end, TopN)
		out.IngredientUsage = usage
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = s.repo.DailySales(ctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.DailyExpenses(ctx, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	out.NetProfit = out.TotalSales.Sub(out.InventoryExpense)
	out.Daily = mergeDaily(start, end, sales, expenses)
	if out.PopularItems == nil {
		out.PopularItems = []PopularItem{}
	}
	if out.IngredientUsage == nil {
		out.IngredientUsage = []IngredientUsage{}
	}
	s.logger.Debug("report computed",
		slog.String("type", string(period)),
		slog.Time("from", start),
		slog.String("total_sales", out.TotalSales.StringFixed(2)))
	return out, nil
}

// mergeDaily lays both series over every day of the window, filling gaps with
// zero.
func mergeDaily(start, end time.Time, sales, expenses []DayAmount) []DailyPoint {
	index := map[string]*DailyPoint{}
	var days []string
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		days = append(days, key)
		index[key] = &DailyPoint{Day: d, Sales: decimal.Zero, Expenses: decimal.Zero}
	}
	for _, a := range sales {
		if p, ok := index[a.Day.Format("2006-01-02")]; ok {
			p.Sales = p.Sales.Add(a.Amount)
		}
	}
	for _, a := range expenses {
		if p, ok := index[a.Day.Format("2006-01-02")]; ok {
			p.Expenses = p.Expenses.Add(a.Amount)
		}
	}
	out := make([]DailyPoint, 0, len(days))
	for _, key := range days {
		out = append(out, *index[key])
	}
	return out
}
