package expenses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const expenseColumns = `id, user_id, category, description, amount_cents, currency, spent_on, created_at, updated_at`

// ListByUser returns the user's expenses, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Expense, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY spent_on DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

// ListAll returns expenses across all users, newest first. Gated by the
// expenses:read_all permission upstream.
func (r *Repository) ListAll(ctx context.Context, limit, offset int) ([]Expense, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY spent_on DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

// Get fetches one expense by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Expense, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	exp, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return exp, nil
}

// OwnerID returns the owning user of an expense with a single indexed
// lookup. Used by the ownership guard ahead of item routes.
func (r *Repository) OwnerID(ctx context.Context, id int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM expenses WHERE id = $1`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return ownerID, nil
}

// Create inserts a new expense.
func (r *Repository) Create(ctx context.Context, exp Expense) (Expense, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO expenses (user_id, category, description, amount_cents, currency, spent_on)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+expenseColumns,
		exp.UserID, exp.Category, exp.Description, exp.AmountCents, exp.Currency, exp.SpentOn)
	return scanExpense(row)
}

// Update rewrites the mutable fields of an expense.
func (r *Repository) Update(ctx context.Context, exp Expense) (Expense, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE expenses SET category = $2, description = $3, amount_cents = $4, currency = $5, spent_on = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+expenseColumns,
		exp.ID, exp.Category, exp.Description, exp.AmountCents, exp.Currency, exp.SpentOn)
	out, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return out, nil
}

// Delete removes an expense.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanExpenses(rows pgx.Rows) ([]Expense, error) {
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

func scanExpense(row pgx.Row) (Expense, error) {
	var exp Expense
	err := row.Scan(&exp.ID, &exp.UserID, &exp.Category, &exp.Description, &exp.AmountCents, &exp.Currency, &exp.SpentOn, &exp.CreatedAt, &exp.UpdatedAt)
	return exp, err
}
