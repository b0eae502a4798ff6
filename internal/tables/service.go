package tables

import (
	"context"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort abstracts table persistence.
type RepositoryPort interface {
	Create(ctx context.Context, name string) (Table, error)
	List(ctx context.Context) ([]Table, error)
	Get(ctx context.Context, id int64) (Table, error)
	SetOccupied(ctx context.Context, id int64, occupied bool) (Table, error)
}

// Service manages dining tables.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create adds a table.
func (s *Service) Create(ctx context.Context, name string) (Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Table{}, shared.Validationf("tables: name required")
	}
	return s.repo.Create(ctx, name)
}

// List returns all tables.
func (s *Service) List(ctx context.Context) ([]Table, error) {
	return s.repo.List(ctx)
}

// SetOccupied is the direct staff toggle.
func (s *Service) SetOccupied(ctx context.Context, id int64, occupied bool) (Table, error) {
	return s.repo.SetOccupied(ctx, id, occupied)
}
