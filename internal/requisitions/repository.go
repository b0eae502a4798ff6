package requisitions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/sequence"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository persists requisitions in PostgreSQL. History lives in the shared
// approvals table.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, approvals *shared.ApprovalRecorder) *Repository {
	return &Repository{pool: pool, approvals: approvals}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Counter() sequence.Counter
	LockOwner(ctx context.Context, userID int64) error
	FindDraft(ctx context.Context, userID int64) (Requisition, bool, error)
	InsertRequisition(ctx context.Context, req Requisition) (Requisition, error)
	LockRequisition(ctx context.Context, id int64) (Requisition, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, requisitionID, itemID int64) error
	CountItems(ctx context.Context, requisitionID int64) (int, error)
	RecomputeTotal(ctx context.Context, requisitionID int64) (decimal.Decimal, error)
	UpdateApproval(ctx context.Context, req Requisition) error
	HasSubmit(ctx context.Context, ref uuid.UUID) (bool, error)
	RecordApproval(ctx context.Context, log shared.ApprovalLog) (shared.ApprovalLog, error)
}

type txRepo struct {
	q         db.DBTX
	counter   *sequence.TxCounter
	approvals *shared.ApprovalRecorder
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, counter: sequence.NewTxCounter(tx), approvals: r.approvals})
	})
}

// submittedExpr is true once a submit entry exists for the row aliased r.
const submittedExpr = `EXISTS (SELECT 1 FROM approvals a WHERE a.module = '` + ApprovalModule + `' AND a.ref_id = r.ref_id AND a.action = 'submit')`

const requisitionColumns = `r.id, r.requisition_number, r.ref_id, r.user_id, r.operations_manager, r.finance, r.director,
r.total_price, r.is_archived, ` + submittedExpr + `, r.created_at, r.updated_at`

func scanRequisition(row pgx.Row) (Requisition, error) {
	var (
		req              Requisition
		ops, fin, direct string
	)
	err := row.Scan(&req.ID, &req.Number, &req.RefID, &req.UserID, &ops, &fin, &direct,
		&req.TotalPrice, &req.IsArchived, &req.Submitted, &req.CreatedAt, &req.UpdatedAt)
	req.OperationsManager, req.Finance, req.Director = GateState(ops), GateState(fin), GateState(direct)
	return req, err
}

func collectRequisitions(rows pgx.Rows) ([]Requisition, error) {
	defer rows.Close()
	var out []Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Get loads a requisition with its items and history.
func (r *Repository) Get(ctx context.Context, id int64) (Requisition, error) {
	req, err := scanRequisition(r.pool.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions r WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrRequisitionNotFound
		}
		return Requisition{}, err
	}
	if req.Items, err = r.items(ctx, id); err != nil {
		return Requisition{}, err
	}
	if req.History, err = r.approvals.List(ctx, r.pool, ApprovalModule, req.RefID); err != nil {
		return Requisition{}, err
	}
	return req, nil
}

// Draft returns the user's draft with its items, if one exists.
func (r *Repository) Draft(ctx context.Context, userID int64) (Requisition, bool, error) {
	req, found, err := findDraft(ctx, r.pool, userID, false)
	if err != nil || !found {
		return Requisition{}, found, err
	}
	if req.Items, err = r.items(ctx, req.ID); err != nil {
		return Requisition{}, false, err
	}
	return req, true, nil
}

// List returns requisitions created in [start, end), newest first. A nil
// userID lists every owner.
func (r *Repository) List(ctx context.Context, userID *int64, start, end time.Time) ([]Requisition, error) {
	clauses := []string{`r.created_at >= $1`, `r.created_at < $2`}
	args := []any{start, end}
	if userID != nil {
		args = append(args, *userID)
		clauses = append(clauses, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+` FROM requisitions r WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY r.created_at DESC, r.id DESC`, args...)
	if err != nil {
		return nil, err
	}
	return collectRequisitions(rows)
}

// Pending returns submitted requisitions that are not archived, oldest first.
func (r *Repository) Pending(ctx context.Context) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+` FROM requisitions r
WHERE NOT r.is_archived AND `+submittedExpr+` ORDER BY r.created_at, r.id`)
	if err != nil {
		return nil, err
	}
	return collectRequisitions(rows)
}

func (r *Repository) items(ctx context.Context, requisitionID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, requisition_id, item_name, units, quantity, unit_price, total_price, reason, comments, created_at
FROM requisition_items WHERE requisition_id = $1 ORDER BY id`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.RequisitionID, &it.Name, &it.Units, &it.Quantity, &it.UnitPrice,
			&it.TotalPrice, &it.Reason, &it.Comments, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func findDraft(ctx context.Context, q db.DBTX, userID int64, lock bool) (Requisition, bool, error) {
	query := `SELECT ` + requisitionColumns + ` FROM requisitions r
WHERE r.user_id = $1 AND NOT r.is_archived AND NOT ` + submittedExpr + `
ORDER BY r.id LIMIT 1`
	if lock {
		query += ` FOR UPDATE OF r`
	}
	req, err := scanRequisition(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, false, nil
		}
		return Requisition{}, false, err
	}
	return req, true, nil
}

func (r *txRepo) Counter() sequence.Counter { return r.counter }

// LockOwner serialises draft creation per user for the rest of the
// transaction.
func (r *txRepo) LockOwner(ctx context.Context, userID int64) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('requisition-draft:' || $1::text, 0))`, userID)
	return err
}

func (r *txRepo) FindDraft(ctx context.Context, userID int64) (Requisition, bool, error) {
	return findDraft(ctx, r.q, userID, true)
}

func (r *txRepo) InsertRequisition(ctx context.Context, req Requisition) (Requisition, error) {
	return scanRequisition(r.q.QueryRow(ctx, `WITH r AS (
	INSERT INTO requisitions (requisition_number, ref_id, user_id) VALUES ($1, $2, $3) RETURNING *
) SELECT `+requisitionColumns+` FROM r`, req.Number, req.RefID, req.UserID))
}

func (r *txRepo) LockRequisition(ctx context.Context, id int64) (Requisition, error) {
	req, err := scanRequisition(r.q.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions r WHERE r.id = $1 FOR UPDATE OF r`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrRequisitionNotFound
		}
		return Requisition{}, err
	}
	return req, nil
}

func (r *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := r.q.QueryRow(ctx, `INSERT INTO requisition_items (requisition_id, item_name, units, quantity, unit_price, total_price, reason, comments)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		it.RequisitionID, it.Name, it.Units, it.Quantity, it.UnitPrice, it.TotalPrice, it.Reason, it.Comments).
		Scan(&it.ID, &it.CreatedAt)
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (r *txRepo) DeleteItem(ctx context.Context, requisitionID, itemID int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM requisition_items WHERE id = $1 AND requisition_id = $2`, itemID, requisitionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) CountItems(ctx context.Context, requisitionID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM requisition_items WHERE requisition_id = $1`, requisitionID).Scan(&n)
	return n, err
}

func (r *txRepo) RecomputeTotal(ctx context.Context, requisitionID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.q.QueryRow(ctx, `UPDATE requisitions
SET total_price = COALESCE((SELECT SUM(total_price) FROM requisition_items WHERE requisition_id = $1), 0), updated_at = NOW()
WHERE id = $1 RETURNING total_price`, requisitionID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrRequisitionNotFound
		}
		return decimal.Zero, err
	}
	return total, nil
}

func (r *txRepo) UpdateApproval(ctx context.Context, req Requisition) error {
	tag, err := r.q.Exec(ctx, `UPDATE requisitions SET operations_manager = $2, finance = $3, director = $4, is_archived = $5, updated_at = NOW()
WHERE id = $1`, req.ID, string(req.OperationsManager), string(req.Finance), string(req.Director), req.IsArchived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequisitionNotFound
	}
	return nil
}

func (r *txRepo) HasSubmit(ctx context.Context, ref uuid.UUID) (bool, error) {
	return r.approvals.HasSubmit(ctx, r.q, ApprovalModule, ref)
}

func (r *txRepo) RecordApproval(ctx context.Context, log shared.ApprovalLog) (shared.ApprovalLog, error) {
	log.Module = ApprovalModule
	return r.approvals.Record(ctx, r.q, log)
}
