package menu

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRow struct {
	id     int64
	itemID int64
	line   IngredientLine
	source Source
}

type memoryRepo struct {
	items     map[int64]MenuItem
	rows      []memoryRow
	nextItem  int64
	nextRow   int64
	upsertCnt int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]MenuItem{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	items := make(map[int64]MenuItem, len(r.items))
	for k, v := range r.items {
		items[k] = v
	}
	rows := append([]memoryRow(nil), r.rows...)
	if err := fn(ctx, r); err != nil {
		r.items, r.rows = items, rows
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (MenuItem, error) {
	item, ok := r.items[id]
	if !ok {
		return MenuItem{}, ErrItemNotFound
	}
	item.Ingredients, _ = r.Ingredients(ctx, id)
	return item, nil
}

func (r *memoryRepo) List(context.Context) ([]MenuItem, error) {
	var out []MenuItem
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) InsertItem(_ context.Context, item MenuItem) (MenuItem, error) {
	r.nextItem++
	item.ID = r.nextItem
	item.CreatedAt = time.Now()
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) UpsertByRecipe(ctx context.Context, item MenuItem) (MenuItem, error) {
	r.upsertCnt++
	for id, existing := range r.items {
		if existing.RecipeID != nil && *existing.RecipeID == *item.RecipeID {
			item.ID = id
			item.CreatedAt = existing.CreatedAt
			r.items[id] = item
			return item, nil
		}
	}
	return r.InsertItem(ctx, item)
}

func (r *memoryRepo) LockItem(_ context.Context, id int64) (MenuItem, error) {
	item, ok := r.items[id]
	if !ok {
		return MenuItem{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) UpdateItem(_ context.Context, item MenuItem) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	item.Ingredients = nil
	r.items[item.ID] = item
	return nil
}

func (r *memoryRepo) DeleteItem(_ context.Context, id int64) error {
	if _, ok := r.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(r.items, id)
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.itemID != id {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

func (r *memoryRepo) ReplaceIngredients(_ context.Context, menuItemID int64, source Source, lines []IngredientLine) error {
	kept := make([]memoryRow, 0, len(r.rows))
	for _, row := range r.rows {
		if row.itemID == menuItemID && row.source == source {
			continue
		}
		kept = append(kept, row)
	}
	for _, line := range lines {
		r.nextRow++
		kept = append(kept, memoryRow{id: r.nextRow, itemID: menuItemID, line: line, source: source})
	}
	r.rows = kept
	return nil
}

func (r *memoryRepo) Ingredients(_ context.Context, menuItemID int64) ([]Ingredient, error) {
	var out []Ingredient
	for _, row := range r.rows {
		if row.itemID == menuItemID {
			out = append(out, Ingredient{StockItemID: row.line.StockItemID, QuantityNeeded: row.line.Quantity, Source: row.source})
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func syncOnce(t *testing.T, repo *memoryRepo, src RecipeSource) (MenuItem, bool) {
	t.Helper()
	var (
		item   MenuItem
		synced bool
	)
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		item, synced, err = Sync(ctx, tx, src)
		return err
	})
	require.NoError(t, err)
	return item, synced
}

func TestMapCategory(t *testing.T) {
	cases := map[string]string{
		"Starter":      CategoryStarters,
		"starter":      CategoryStarters,
		"Main Course":  CategoryMainCourse,
		"main  course": CategoryMainCourse,
		"Dessert":      CategoryDesserts,
		"Break Fast":   CategoryBreakFast,
		"BREAK FAST":   CategoryBreakFast,
		"Breakfast":    CategoryMainCourse,
		"Lunch":        CategoryMainCourse,
		"Soup":         CategoryMainCourse,
		"":             CategoryMainCourse,
	}
	for in, want := range cases {
		require.Equal(t, want, MapCategory(in), in)
	}
}

func TestSyncSkipsRecipeWithoutIngredients(t *testing.T) {
	repo := newMemoryRepo()
	_, synced := syncOnce(t, repo, RecipeSource{RecipeID: 1, Name: "Air", Category: "Starter"})
	require.False(t, synced)
	require.Empty(t, repo.items)
	require.Zero(t, repo.upsertCnt)
}

func TestSyncFloorsPrice(t *testing.T) {
	repo := newMemoryRepo()
	item, synced := syncOnce(t, repo, RecipeSource{
		RecipeID:     1,
		Name:         "Free Water",
		Category:     "Dessert",
		SellingPrice: decimal.Zero,
		Ingredients:  []IngredientLine{{StockItemID: 3, Quantity: dec("1")}},
	})
	require.True(t, synced)
	require.True(t, item.Price.Equal(dec("0.01")))
	require.Equal(t, CategoryDesserts, item.Category)
}

func TestSyncIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	src := RecipeSource{
		RecipeID:     9,
		Name:         "Beef Stew",
		Category:     "Main Course",
		SellingPrice: dec("1920.00"),
		Ingredients: []IngredientLine{
			{StockItemID: 2, Quantity: dec("3")},
			{StockItemID: 1, Quantity: dec("2")},
		},
	}
	first, _ := syncOnce(t, repo, src)
	second, _ := syncOnce(t, repo, src)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.items, 1)
	require.Equal(t, first.Ingredients, second.Ingredients)
	require.Len(t, second.Ingredients, 2)
	require.Equal(t, int64(1), second.Ingredients[0].StockItemID)
	require.True(t, second.Price.Equal(dec("1920")))
	require.Equal(t, *second.RecipeID, int64(9))
}

func TestSyncLeavesDirectRowsAlone(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	item, _ := syncOnce(t, repo, RecipeSource{RecipeID: 4, Name: "Chips", SellingPrice: dec("10"), Ingredients: []IngredientLine{{StockItemID: 1, Quantity: dec("0.2")}}})

	_, err := svc.SetIngredients(context.Background(), item.ID, []IngredientLine{{StockItemID: 7, Quantity: dec("1")}})
	require.NoError(t, err)
	synced, _ := syncOnce(t, repo, RecipeSource{RecipeID: 4, Name: "Chips", SellingPrice: dec("12"), Ingredients: []IngredientLine{{StockItemID: 1, Quantity: dec("0.3")}}})

	var direct, mirror int
	for _, ing := range synced.Ingredients {
		switch ing.Source {
		case SourceDirect:
			direct++
			require.Equal(t, int64(7), ing.StockItemID)
		case SourceRecipe:
			mirror++
			require.True(t, ing.QuantityNeeded.Equal(dec("0.3")))
		}
	}
	require.Equal(t, 1, direct)
	require.Equal(t, 1, mirror)
}

func TestCombineNeedsCountsMirrorRowsOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	recipe := []IngredientLine{{StockItemID: 1, Quantity: dec("0.2")}, {StockItemID: 3, Quantity: dec("0.05")}}
	item, _ := syncOnce(t, repo, RecipeSource{RecipeID: 4, Name: "Chips", SellingPrice: dec("10"), Ingredients: recipe})
	item, err := svc.SetIngredients(context.Background(), item.ID, []IngredientLine{
		{StockItemID: 7, Quantity: dec("1")},
		{StockItemID: 3, Quantity: dec("0.01")},
	})
	require.NoError(t, err)
	require.Len(t, item.Ingredients, 4)

	needs := CombineNeeds(recipe, item.Ingredients)
	require.Len(t, needs, 3)
	require.Equal(t, []int64{1, 3, 7}, []int64{needs[0].StockItemID, needs[1].StockItemID, needs[2].StockItemID})
	require.True(t, needs[0].Quantity.Equal(dec("0.2")))
	require.True(t, needs[1].Quantity.Equal(dec("0.06")))
	require.True(t, needs[2].Quantity.Equal(dec("1")))

	require.Nil(t, CombineNeeds(nil, nil))
	standalone := CombineNeeds(nil, []Ingredient{{StockItemID: 5, QuantityNeeded: dec("2"), Source: SourceDirect}})
	require.Len(t, standalone, 1)
	require.True(t, standalone[0].Quantity.Equal(dec("2")))
}

func TestUpdateLinkedItemRejectsPrice(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	item, _ := syncOnce(t, repo, RecipeSource{RecipeID: 1, Name: "Soup", SellingPrice: dec("50"), Ingredients: []IngredientLine{{StockItemID: 1, Quantity: dec("1")}}})

	price := dec("99")
	_, err := svc.UpdateItem(context.Background(), UpdateItemInput{ID: item.ID, Name: "Soup", Price: &price})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, repo.items[item.ID].Price.Equal(dec("50")))

	updated, err := svc.UpdateItem(context.Background(), UpdateItemInput{ID: item.ID, Name: "Soup of the Day", Category: "starter"})
	require.NoError(t, err)
	require.Equal(t, CategoryStarters, updated.Category)
	require.True(t, updated.Price.Equal(dec("50")))
}

func TestCreateStandaloneItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		Name:     "Soda",
		Category: "Drinks",
		Price:    dec("2500"),
		Ingredients: []IngredientLine{
			{StockItemID: 5, Quantity: dec("1")},
			{StockItemID: 5, Quantity: dec("1")},
		},
	})
	require.NoError(t, err)
	require.False(t, item.Linked())
	require.Len(t, item.Ingredients, 1)
	require.True(t, item.Ingredients[0].QuantityNeeded.Equal(dec("2")))

	_, err = svc.CreateItem(context.Background(), CreateItemInput{Name: "Gift", Price: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateItemRejectsDigitsPastColumnScale(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, CreateItemInput{Name: "Soda", Price: dec("2.345")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateItem(ctx, CreateItemInput{Name: "Soda", Price: dec("2.50"), Ingredients: []IngredientLine{{StockItemID: 5, Quantity: dec("0.0004")}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.items)

	item, err := svc.CreateItem(ctx, CreateItemInput{Name: "Soda", Price: dec("2.500")})
	require.NoError(t, err)
	price := dec("3.999")
	_, err = svc.UpdateItem(ctx, UpdateItemInput{ID: item.ID, Name: "Soda", Price: &price})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, repo.items[item.ID].Price.Equal(dec("2.5")))
}

func TestDeleteUnknownItem(t *testing.T) {
	svc := NewService(newMemoryRepo())
	require.ErrorIs(t, svc.DeleteItem(context.Background(), 12), shared.ErrNotFound)
}
