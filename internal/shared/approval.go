package shared

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "submit"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "approve"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "reject"
)

// ApprovalLog represents a single approval record. Field names the gate the
// action applied to and is empty for submissions.
type ApprovalLog struct {
	ID      int64          `json:"id"`
	Module  string         `json:"module"`
	RefID   uuid.UUID      `json:"ref_id"`
	ActorID int64          `json:"actor_id"`
	Action  ApprovalAction `json:"action"`
	Field   string         `json:"field,omitempty"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
}

// ApprovalRecorder persists approval history. It writes through the caller's
// transaction so history and the state it describes commit together.
type ApprovalRecorder struct {
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{logger: logger}
}

// ApprovalRef derives the stable approval reference of a module record.
func ApprovalRef(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(module+":"+strconv.FormatInt(id, 10)))
}

// Record writes approval entry using q.
func (r *ApprovalRecorder) Record(ctx context.Context, q db.DBTX, log ApprovalLog) (ApprovalLog, error) {
	if r == nil {
		return ApprovalLog{}, errors.New("approval recorder not initialised")
	}
	if log.Module == "" {
		return ApprovalLog{}, errors.New("approval module required")
	}
	if log.ActorID == 0 {
		return ApprovalLog{}, errors.New("approval actor required")
	}
	if log.RefID == uuid.Nil {
		return ApprovalLog{}, errors.New("approval ref id required")
	}
	if log.Action == "" {
		return ApprovalLog{}, errors.New("approval action required")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	err := q.QueryRow(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, field, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		log.Module, log.RefID, log.ActorID, string(log.Action), log.Field, log.Note, log.At).Scan(&log.ID)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("record approval", slog.String("module", log.Module), slog.Any("error", err))
		}
		return ApprovalLog{}, err
	}
	return log, nil
}

// List returns approvals for module/ref in chronological order.
func (r *ApprovalRecorder) List(ctx context.Context, q db.DBTX, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := q.Query(ctx, `SELECT id, module, ref_id, actor_id, action, field, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Field, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// HasSubmit reports whether a submit record exists for module/ref.
func (r *ApprovalRecorder) HasSubmit(ctx context.Context, q db.DBTX, module string, ref uuid.UUID) (bool, error) {
	if r == nil {
		return false, errors.New("approval recorder not initialised")
	}
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM approvals WHERE module=$1 AND ref_id=$2 AND action='submit')`, module, ref).Scan(&exists)
	return exists, err
}
