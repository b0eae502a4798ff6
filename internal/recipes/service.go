package recipes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/menu"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Recipe, error)
	List(ctx context.Context, start, end time.Time) ([]Recipe, error)
}

// Service coordinates recipes, their stock consumption and menu sync.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create stores a recipe, consumes its ingredients from stock and recomputes
// its costing.
func (s *Service) Create(ctx context.Context, input CreateInput) (Recipe, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Recipe{}, shared.Validationf("recipes: name required")
	}
	profit := DefaultProfitPercentage
	if input.ProfitPercentage != nil {
		profit = *input.ProfitPercentage
	}
	if profit.IsNegative() {
		return Recipe{}, ErrInvalidProfit
	}
	if err := shared.CheckMoney("recipes: profit percentage", profit); err != nil {
		return Recipe{}, err
	}
	if err := validIngredients(input.Ingredients); err != nil {
		return Recipe{}, err
	}
	var rec Recipe
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.InsertRecipe(ctx, Recipe{
			Name:             name,
			Category:         menu.NormalizeCategory(input.Category),
			Description:      strings.TrimSpace(input.Description),
			ProfitPercentage: profit,
		})
		if err != nil {
			return err
		}
		if err := addIngredients(ctx, tx, rec, input.Ingredients); err != nil {
			return err
		}
		rec, err = Recompute(ctx, tx, rec.ID)
		return err
	})
	if err != nil {
		return Recipe{}, err
	}
	s.logger.Info("recipe created", slog.Int64("recipe_id", rec.ID), slog.String("total_cost", rec.TotalCost.String()))
	return rec, nil
}

// AddIngredients appends ingredients, consuming them from stock.
func (s *Service) AddIngredients(ctx context.Context, recipeID int64, lines []IngredientInput) (Recipe, error) {
	if len(lines) == 0 {
		return Recipe{}, shared.Validationf("recipes: at least one ingredient required")
	}
	if err := validIngredients(lines); err != nil {
		return Recipe{}, err
	}
	var rec Recipe
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockRecipe(ctx, recipeID)
		if err != nil {
			return err
		}
		if err := addIngredients(ctx, tx, locked, lines); err != nil {
			return err
		}
		rec, err = Recompute(ctx, tx, recipeID)
		return err
	})
	return rec, err
}

// RemoveIngredient drops one ingredient. Consumed stock is not returned.
func (s *Service) RemoveIngredient(ctx context.Context, recipeID, ingredientID int64) (Recipe, error) {
	var rec Recipe
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockRecipe(ctx, recipeID); err != nil {
			return err
		}
		if err := tx.DeleteIngredient(ctx, recipeID, ingredientID); err != nil {
			return err
		}
		var err error
		rec, err = Recompute(ctx, tx, recipeID)
		return err
	})
	return rec, err
}

// Update edits recipe attributes and recomputes its costing.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Recipe, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Recipe{}, shared.Validationf("recipes: name required")
	}
	if input.ProfitPercentage.IsNegative() {
		return Recipe{}, ErrInvalidProfit
	}
	if err := shared.CheckMoney("recipes: profit percentage", input.ProfitPercentage); err != nil {
		return Recipe{}, err
	}
	var rec Recipe
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockRecipe(ctx, input.ID)
		if err != nil {
			return err
		}
		locked.Name = name
		locked.Category = menu.NormalizeCategory(input.Category)
		locked.Description = strings.TrimSpace(input.Description)
		locked.ProfitPercentage = input.ProfitPercentage
		if err := tx.UpdateRecipe(ctx, locked); err != nil {
			return err
		}
		rec, err = Recompute(ctx, tx, input.ID)
		return err
	})
	return rec, err
}

// Recalculate runs Recompute in its own transaction.
func (s *Service) Recalculate(ctx context.Context, id int64) (Recipe, error) {
	var rec Recipe
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = Recompute(ctx, tx, id)
		return err
	})
	return rec, err
}

// Delete removes a recipe, its ingredients and its menu item.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockRecipe(ctx, id); err != nil {
			return err
		}
		return tx.DeleteRecipe(ctx, id)
	})
}

// Get returns a recipe with its ingredients.
func (s *Service) Get(ctx context.Context, id int64) (Recipe, error) {
	return s.repo.Get(ctx, id)
}

// List returns recipes, optionally those created within the filter window.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Recipe, error) {
	if filter.From.IsZero() {
		return s.repo.List(ctx, time.Time{}, time.Time{})
	}
	period := filter.Period
	if period == "" {
		period = shared.PeriodWeekly
	}
	start, end := period.Window(filter.From)
	return s.repo.List(ctx, start, end)
}

// Recompute recalculates total cost and selling price from the recipe's
// ingredient rows, persists both and syncs the linked menu item once. A recipe
// without ingredients is costed at zero and gets no menu item.
func Recompute(ctx context.Context, tx TxRepository, recipeID int64) (Recipe, error) {
	rec, err := tx.LockRecipe(ctx, recipeID)
	if err != nil {
		return Recipe{}, err
	}
	rec.Ingredients, err = tx.Ingredients(ctx, recipeID)
	if err != nil {
		return Recipe{}, err
	}
	rec.TotalCost, rec.SellingPrice = Cost(rec.Ingredients, rec.ProfitPercentage)
	if err := tx.UpdateCosting(ctx, rec.ID, rec.TotalCost, rec.SellingPrice); err != nil {
		return Recipe{}, err
	}
	src := menu.RecipeSource{
		RecipeID:     rec.ID,
		Name:         rec.Name,
		Category:     rec.Category,
		SellingPrice: rec.SellingPrice,
	}
	for _, ing := range rec.Ingredients {
		src.Ingredients = append(src.Ingredients, menu.IngredientLine{StockItemID: ing.StockItemID, Quantity: ing.Quantity})
	}
	item, synced, err := menu.Sync(ctx, tx.Menu(), src)
	if err != nil {
		return Recipe{}, err
	}
	if synced {
		rec.MenuItemID = &item.ID
	}
	return rec, nil
}

// addIngredients consumes the lines from stock in one ledger call, then stores
// one ingredient row per line at the explicit price or the item's price at
// consumption time.
func addIngredients(ctx context.Context, tx TxRepository, rec Recipe, lines []IngredientInput) error {
	if len(lines) == 0 {
		return nil
	}
	reqs := make([]inventory.Requirement, 0, len(lines))
	for _, line := range lines {
		reqs = append(reqs, inventory.Requirement{ItemID: line.StockItemID, Quantity: line.Quantity})
	}
	entries, err := inventory.Consume(ctx, tx.Stock(), reqs, "Used for recipe "+rec.Name)
	if err != nil {
		return err
	}
	prices := make(map[int64]inventory.HistoryEntry, len(entries))
	for _, e := range entries {
		prices[e.ItemID] = e
	}
	for _, line := range lines {
		entry, ok := prices[line.StockItemID]
		if !ok {
			return fmt.Errorf("recipes: no ledger entry for stock item %d", line.StockItemID)
		}
		price := entry.UnitPrice
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		if _, err := tx.InsertIngredient(ctx, Ingredient{
			RecipeID:    rec.ID,
			StockItemID: line.StockItemID,
			Quantity:    line.Quantity,
			UnitPrice:   price,
		}); err != nil {
			return err
		}
	}
	return nil
}

func validIngredients(lines []IngredientInput) error {
	for _, line := range lines {
		if line.StockItemID <= 0 {
			return fmt.Errorf("recipes: stock item %d: %w", line.StockItemID, inventory.ErrItemNotFound)
		}
		if !line.Quantity.IsPositive() {
			return ErrInvalidQuantity
		}
		if err := shared.CheckQuantity("recipes: ingredient quantity", line.Quantity); err != nil {
			return err
		}
		if line.UnitPrice == nil {
			continue
		}
		if line.UnitPrice.IsNegative() {
			return shared.Validationf("recipes: ingredient unit price must not be negative")
		}
		if err := shared.CheckMoney("recipes: ingredient unit price", *line.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}
