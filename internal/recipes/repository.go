package recipes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/menu"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository persists recipes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service. Stock and
// Menu give access to the inventory ledger and menu sync on the same
// transaction.
type TxRepository interface {
	InsertRecipe(ctx context.Context, recipe Recipe) (Recipe, error)
	LockRecipe(ctx context.Context, id int64) (Recipe, error)
	UpdateRecipe(ctx context.Context, recipe Recipe) error
	UpdateCosting(ctx context.Context, id int64, total, selling decimal.Decimal) error
	DeleteRecipe(ctx context.Context, id int64) error
	InsertIngredient(ctx context.Context, ing Ingredient) (Ingredient, error)
	DeleteIngredient(ctx context.Context, recipeID, ingredientID int64) error
	Ingredients(ctx context.Context, recipeID int64) ([]Ingredient, error)
	Stock() inventory.TxRepository
	Menu() menu.TxRepository
}

type txRepo struct {
	q     db.DBTX
	stock inventory.TxRepository
	menu  menu.TxRepository
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, stock: inventory.NewTxRepository(tx), menu: menu.NewTxRepository(tx)})
	})
}

const recipeColumns = `r.id, r.name, r.category, r.description, r.profit_percentage, r.total_cost, r.selling_price, m.id, r.created_at, r.updated_at`

const recipeFrom = ` FROM recipes r LEFT JOIN menu_items m ON m.recipe_id = r.id`

func scanRecipe(row pgx.Row) (Recipe, error) {
	var rec Recipe
	err := row.Scan(&rec.ID, &rec.Name, &rec.Category, &rec.Description, &rec.ProfitPercentage,
		&rec.TotalCost, &rec.SellingPrice, &rec.MenuItemID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// Get loads a recipe with its ingredients.
func (r *Repository) Get(ctx context.Context, id int64) (Recipe, error) {
	rec, err := scanRecipe(r.pool.QueryRow(ctx, `SELECT `+recipeColumns+recipeFrom+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipe{}, ErrRecipeNotFound
		}
		return Recipe{}, err
	}
	rec.Ingredients, err = (&txRepo{q: r.pool}).Ingredients(ctx, id)
	if err != nil {
		return Recipe{}, err
	}
	return rec, nil
}

// List returns recipes newest first, with ingredients.
func (r *Repository) List(ctx context.Context, start, end time.Time) ([]Recipe, error) {
	query := `SELECT ` + recipeColumns + recipeFrom
	var args []any
	if !start.IsZero() {
		query += ` WHERE r.created_at >= $1 AND r.created_at < $2`
		args = append(args, start, end)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Ingredients, err = (&txRepo{q: r.pool}).Ingredients(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *txRepo) Stock() inventory.TxRepository { return r.stock }

func (r *txRepo) Menu() menu.TxRepository { return r.menu }

func (r *txRepo) InsertRecipe(ctx context.Context, rec Recipe) (Recipe, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO recipes (name, category, description, profit_percentage)
VALUES ($1, $2, $3, $4) RETURNING id, total_cost, selling_price, created_at, updated_at`,
		rec.Name, rec.Category, rec.Description, rec.ProfitPercentage).
		Scan(&rec.ID, &rec.TotalCost, &rec.SellingPrice, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Recipe{}, ErrDuplicateRecipe
		}
		return Recipe{}, err
	}
	return rec, nil
}

func (r *txRepo) LockRecipe(ctx context.Context, id int64) (Recipe, error) {
	// FOR UPDATE cannot apply to the nullable side of an outer join.
	rec, err := scanRecipe(r.q.QueryRow(ctx, `SELECT `+recipeColumns+recipeFrom+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipe{}, ErrRecipeNotFound
		}
		return Recipe{}, err
	}
	return rec, nil
}

func (r *txRepo) UpdateRecipe(ctx context.Context, rec Recipe) error {
	tag, err := r.q.Exec(ctx, `UPDATE recipes SET name = $2, category = $3, description = $4, profit_percentage = $5, updated_at = NOW()
WHERE id = $1`, rec.ID, rec.Name, rec.Category, rec.Description, rec.ProfitPercentage)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateRecipe
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

func (r *txRepo) UpdateCosting(ctx context.Context, id int64, total, selling decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `UPDATE recipes SET total_cost = $2, selling_price = $3, updated_at = NOW() WHERE id = $1`, id, total, selling)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

func (r *txRepo) DeleteRecipe(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrRecipeOrdered
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

func (r *txRepo) InsertIngredient(ctx context.Context, ing Ingredient) (Ingredient, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO recipe_ingredients (recipe_id, stock_item_id, quantity, unit_price)
VALUES ($1, $2, $3, $4) RETURNING id`, ing.RecipeID, ing.StockItemID, ing.Quantity, ing.UnitPrice).Scan(&ing.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Ingredient{}, fmt.Errorf("recipes: stock item %d: %w", ing.StockItemID, inventory.ErrItemNotFound)
		}
		return Ingredient{}, err
	}
	return ing, nil
}

func (r *txRepo) DeleteIngredient(ctx context.Context, recipeID, ingredientID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM recipe_ingredients WHERE id = $1 AND recipe_id = $2`, ingredientID, recipeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIngredientNotFound
	}
	return nil
}

func (r *txRepo) Ingredients(ctx context.Context, recipeID int64) ([]Ingredient, error) {
	rows, err := r.q.Query(ctx, `SELECT ri.id, ri.recipe_id, ri.stock_item_id, s.name, s.units, ri.quantity, ri.unit_price
FROM recipe_ingredients ri JOIN stock_items s ON s.id = ri.stock_item_id
WHERE ri.recipe_id = $1 ORDER BY ri.id`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ingredient
	for rows.Next() {
		var ing Ingredient
		if err := rows.Scan(&ing.ID, &ing.RecipeID, &ing.StockItemID, &ing.StockItemName, &ing.Units, &ing.Quantity, &ing.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}
