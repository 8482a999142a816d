package expenses

import (
	"context"
	"strconv"

	"github.com/pennywise-app/pennywise/internal/shared"
)

// RepositoryPort defines data access methods for expenses.
type RepositoryPort interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Expense, error)
	ListAll(ctx context.Context, limit, offset int) ([]Expense, error)
	Get(ctx context.Context, id int64) (Expense, error)
	OwnerID(ctx context.Context, id int64) (int64, error)
	Create(ctx context.Context, exp Expense) (Expense, error)
	Update(ctx context.Context, exp Expense) (Expense, error)
	Delete(ctx context.Context, id int64) error
}

// Service handles expense business logic.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditSink
}

// NewService builds a Service instance. The audit sink may be nil.
func NewService(repo RepositoryPort, audit shared.AuditSink) *Service {
	return &Service{repo: repo, audit: audit}
}

// ListByUser returns the user's expenses.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Expense, error) {
	return s.repo.ListByUser(ctx, userID, clampLimit(limit), offset)
}

// ListAll returns expenses across all users.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]Expense, error) {
	return s.repo.ListAll(ctx, clampLimit(limit), offset)
}

// Get fetches one expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// OwnerID resolves the owning user of an expense.
func (s *Service) OwnerID(ctx context.Context, id int64) (int64, error) {
	return s.repo.OwnerID(ctx, id)
}

// Create inserts a new expense for its owner.
func (s *Service) Create(ctx context.Context, actorID int64, exp Expense) (Expense, error) {
	created, err := s.repo.Create(ctx, exp)
	if err != nil {
		return Expense{}, err
	}
	s.record(actorID, "expenses.create", created.ID)
	return created, nil
}

// Update rewrites an expense.
func (s *Service) Update(ctx context.Context, actorID int64, exp Expense) (Expense, error) {
	updated, err := s.repo.Update(ctx, exp)
	if err != nil {
		return Expense{}, err
	}
	s.record(actorID, "expenses.update", updated.ID)
	return updated, nil
}

// Delete removes an expense.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(actorID, "expenses.delete", id)
	return nil
}

func (s *Service) record(actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	s.audit.Record(shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   "expense",
		EntityID: strconv.FormatInt(entityID, 10),
	})
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
