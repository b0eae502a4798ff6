package tables

import (
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Table is a dining table.
type Table struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	IsOccupied bool   `json:"is_occupied"`
}

var (
	// ErrTableNotFound indicates the table does not exist.
	ErrTableNotFound = fmt.Errorf("tables: table %w", shared.ErrNotFound)
	// ErrDuplicateTable indicates the name is taken.
	ErrDuplicateTable = fmt.Errorf("tables: name already exists: %w", shared.ErrConflict)
)
