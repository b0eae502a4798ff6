package menu

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Sync upserts the menu item linked to src and rewrites its recipe mirror.
// A recipe without ingredients is skipped and reported with synced=false.
// Running Sync again on unchanged input leaves the same item and mirror.
func Sync(ctx context.Context, tx TxRepository, src RecipeSource) (item MenuItem, synced bool, err error) {
	if len(src.Ingredients) == 0 {
		return MenuItem{}, false, nil
	}
	price := src.SellingPrice.Round(2)
	if price.LessThanOrEqual(decimal.Zero) {
		price = MinimumPrice
	}
	recipeID := src.RecipeID
	item, err = tx.UpsertByRecipe(ctx, MenuItem{
		Name:     strings.TrimSpace(src.Name),
		Category: MapCategory(src.Category),
		Price:    price,
		RecipeID: &recipeID,
	})
	if err != nil {
		return MenuItem{}, false, fmt.Errorf("menu: upsert for recipe %d: %w", src.RecipeID, err)
	}
	if err := tx.ReplaceIngredients(ctx, item.ID, SourceRecipe, mergeLines(src.Ingredients)); err != nil {
		return MenuItem{}, false, fmt.Errorf("menu: mirror recipe %d: %w", src.RecipeID, err)
	}
	item.Ingredients, err = tx.Ingredients(ctx, item.ID)
	if err != nil {
		return MenuItem{}, false, err
	}
	return item, true, nil
}

// mergeLines sums quantities per stock item, ordered by stock item id.
func mergeLines(lines []IngredientLine) []IngredientLine {
	totals := make(map[int64]decimal.Decimal, len(lines))
	order := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := totals[line.StockItemID]; !ok {
			order = append(order, line.StockItemID)
		}
		totals[line.StockItemID] = totals[line.StockItemID].Add(line.Quantity)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]IngredientLine, 0, len(order))
	for _, id := range order {
		out = append(out, IngredientLine{StockItemID: id, Quantity: totals[id]})
	}
	return out
}

// CombineNeeds is what one unit of an item consumes: the linked recipe's
// ingredients plus the item's direct rows, summed per stock item. Mirror rows
// copy the recipe and are skipped so nothing is counted twice.
func CombineNeeds(recipe []IngredientLine, rows []Ingredient) []Need {
	lines := append([]IngredientLine(nil), recipe...)
	for _, row := range rows {
		if row.Source == SourceRecipe {
			continue
		}
		lines = append(lines, IngredientLine{StockItemID: row.StockItemID, Quantity: row.QuantityNeeded})
	}
	if len(lines) == 0 {
		return nil
	}
	merged := mergeLines(lines)
	needs := make([]Need, len(merged))
	for i, line := range merged {
		needs[i] = Need{StockItemID: line.StockItemID, Quantity: line.Quantity}
	}
	return needs
}
