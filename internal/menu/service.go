package menu

import (
	"context"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts menu persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (MenuItem, error)
	List(ctx context.Context) ([]MenuItem, error)
}

// Service manages menu items. Recipe-linked items are created and priced by
// Sync; the operations here cover standalone items and direct ingredients.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all menu items.
func (s *Service) List(ctx context.Context) ([]MenuItem, error) {
	return s.repo.List(ctx)
}

// Get returns one menu item with its ingredient rows.
func (s *Service) Get(ctx context.Context, id int64) (MenuItem, error) {
	return s.repo.Get(ctx, id)
}

// CreateItem creates a standalone item with direct ingredient needs.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (MenuItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return MenuItem{}, shared.Validationf("menu: name required")
	}
	if !input.Price.IsPositive() {
		return MenuItem{}, ErrInvalidPrice
	}
	if err := shared.CheckMoney("menu: price", input.Price); err != nil {
		return MenuItem{}, err
	}
	lines, err := validLines(input.Ingredients)
	if err != nil {
		return MenuItem{}, err
	}
	var item MenuItem
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.InsertItem(ctx, MenuItem{Name: name, Category: MapCategory(input.Category), Price: input.Price.Round(2)})
		if err != nil {
			return err
		}
		if err := tx.ReplaceIngredients(ctx, item.ID, SourceDirect, lines); err != nil {
			return err
		}
		item.Ingredients, err = tx.Ingredients(ctx, item.ID)
		return err
	})
	if err != nil {
		return MenuItem{}, err
	}
	return item, nil
}

// UpdateItem edits name, category and, for standalone items, price.
func (s *Service) UpdateItem(ctx context.Context, input UpdateItemInput) (MenuItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return MenuItem{}, shared.Validationf("menu: name required")
	}
	if input.Price != nil {
		if !input.Price.IsPositive() {
			return MenuItem{}, ErrInvalidPrice
		}
		if err := shared.CheckMoney("menu: price", *input.Price); err != nil {
			return MenuItem{}, err
		}
	}
	var item MenuItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.LockItem(ctx, input.ID)
		if err != nil {
			return err
		}
		if item.Linked() && input.Price != nil {
			return ErrLinkedPrice
		}
		item.Name = name
		item.Category = MapCategory(input.Category)
		if input.Price != nil {
			item.Price = input.Price.Round(2)
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		item.Ingredients, err = tx.Ingredients(ctx, item.ID)
		return err
	})
	if err != nil {
		return MenuItem{}, err
	}
	return item, nil
}

// SetIngredients replaces the direct ingredient rows of an item.
func (s *Service) SetIngredients(ctx context.Context, menuItemID int64, lines []IngredientLine) (MenuItem, error) {
	merged, err := validLines(lines)
	if err != nil {
		return MenuItem{}, err
	}
	var item MenuItem
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.LockItem(ctx, menuItemID)
		if err != nil {
			return err
		}
		if err := tx.ReplaceIngredients(ctx, item.ID, SourceDirect, merged); err != nil {
			return err
		}
		item.Ingredients, err = tx.Ingredients(ctx, item.ID)
		return err
	})
	if err != nil {
		return MenuItem{}, err
	}
	return item, nil
}

// DeleteItem removes a menu item.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteItem(ctx, id)
	})
}

func validLines(lines []IngredientLine) ([]IngredientLine, error) {
	for _, line := range lines {
		if line.StockItemID <= 0 {
			return nil, ErrStockItemNotFound
		}
		if !line.Quantity.IsPositive() {
			return nil, ErrInvalidQuantity
		}
		if err := shared.CheckQuantity("menu: ingredient quantity", line.Quantity); err != nil {
			return nil, err
		}
	}
	return mergeLines(lines), nil
}
