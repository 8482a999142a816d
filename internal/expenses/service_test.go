package expenses

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pennywise-app/pennywise/internal/shared"
)

type memoryExpenseRepo struct {
	expenses  map[int64]Expense
	nextID    int64
	lastLimit int
}

func newMemoryExpenseRepo() *memoryExpenseRepo {
	return &memoryExpenseRepo{expenses: make(map[int64]Expense)}
}

func (r *memoryExpenseRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Expense, error) {
	r.lastLimit = limit
	var out []Expense
	for _, e := range r.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryExpenseRepo) ListAll(ctx context.Context, limit, offset int) ([]Expense, error) {
	r.lastLimit = limit
	out := make([]Expense, 0, len(r.expenses))
	for _, e := range r.expenses {
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryExpenseRepo) Get(ctx context.Context, id int64) (Expense, error) {
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryExpenseRepo) OwnerID(ctx context.Context, id int64) (int64, error) {
	e, ok := r.expenses[id]
	if !ok {
		return 0, ErrNotFound
	}
	return e.UserID, nil
}

func (r *memoryExpenseRepo) Create(ctx context.Context, exp Expense) (Expense, error) {
	r.nextID++
	exp.ID = r.nextID
	r.expenses[exp.ID] = exp
	return exp, nil
}

func (r *memoryExpenseRepo) Update(ctx context.Context, exp Expense) (Expense, error) {
	if _, ok := r.expenses[exp.ID]; !ok {
		return Expense{}, ErrNotFound
	}
	r.expenses[exp.ID] = exp
	return exp, nil
}

func (r *memoryExpenseRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(r.expenses, id)
	return nil
}

type recordingSink struct {
	events []shared.AuditEvent
}

func (s *recordingSink) Record(event shared.AuditEvent) {
	s.events = append(s.events, event)
}

func sample(userID int64) Expense {
	return Expense{
		UserID:      userID,
		Category:    "groceries",
		Description: "weekly shop",
		AmountCents: 8250,
		Currency:    "USD",
		SpentOn:     time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateUpdateDeleteRecordAudit(t *testing.T) {
	repo := newMemoryExpenseRepo()
	sink := &recordingSink{}
	svc := NewService(repo, sink)
	ctx := context.Background()

	exp, err := svc.Create(ctx, 7, sample(7))
	require.NoError(t, err)
	require.NotZero(t, exp.ID)

	exp.AmountCents = 9000
	_, err = svc.Update(ctx, 7, exp)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 7, exp.ID))

	require.Len(t, sink.events, 3)
	require.Equal(t, "expenses.create", sink.events[0].Action)
	require.Equal(t, "expenses.update", sink.events[1].Action)
	require.Equal(t, "expenses.delete", sink.events[2].Action)
	require.Equal(t, int64(7), sink.events[0].ActorID)
}

func TestDeleteMissingExpense(t *testing.T) {
	svc := NewService(newMemoryExpenseRepo(), nil)
	require.ErrorIs(t, svc.Delete(context.Background(), 7, 404), ErrNotFound)
}

func TestListClampsLimit(t *testing.T) {
	repo := newMemoryExpenseRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ListByUser(ctx, 7, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 50, repo.lastLimit)

	_, err = svc.ListByUser(ctx, 7, 500, 0)
	require.NoError(t, err)
	require.Equal(t, 50, repo.lastLimit)

	_, err = svc.ListAll(ctx, 25, 0)
	require.NoError(t, err)
	require.Equal(t, 25, repo.lastLimit)
}

func TestOwnerID(t *testing.T) {
	repo := newMemoryExpenseRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	exp, err := svc.Create(ctx, 7, sample(7))
	require.NoError(t, err)

	owner, err := svc.OwnerID(ctx, exp.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), owner)

	_, err = svc.OwnerID(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
}
