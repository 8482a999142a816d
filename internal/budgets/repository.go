package budgets

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

const budgetColumns = `id, user_id, category, month, limit_cents, currency, created_at, updated_at`

// ListByUser returns the user's budgets ordered by month then category.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Budget, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1 ORDER BY month DESC, category`, userID)
	if err != nil {
		return nil, err
	}
	return scanBudgets(rows)
}

// Get fetches one budget by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Budget, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, id)
	b, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrNotFound
		}
		return Budget{}, err
	}
	return b, nil
}

// OwnerID returns the owning user of a budget.
func (r *Repository) OwnerID(ctx context.Context, id int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM budgets WHERE id = $1`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return ownerID, nil
}

// Create inserts a new budget.
func (r *Repository) Create(ctx context.Context, b Budget) (Budget, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO budgets (user_id, category, month, limit_cents, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+budgetColumns,
		b.UserID, b.Category, b.Month, b.LimitCents, b.Currency)
	return scanBudget(row)
}

// Update rewrites the mutable fields of a budget.
func (r *Repository) Update(ctx context.Context, b Budget) (Budget, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE budgets SET category = $2, month = $3, limit_cents = $4, currency = $5, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+budgetColumns,
		b.ID, b.Category, b.Month, b.LimitCents, b.Currency)
	out, err := scanBudget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrNotFound
		}
		return Budget{}, err
	}
	return out, nil
}

// Delete removes a budget.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM budgets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SummaryForMonth joins budgets against expense totals for one user and
// month.
func (r *Repository) SummaryForMonth(ctx context.Context, userID int64, month string) ([]SummaryLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.category, b.month, b.limit_cents, b.currency,
		        COALESCE(SUM(e.amount_cents), 0) AS spent_cents
		 FROM budgets b
		 LEFT JOIN expenses e
		   ON e.user_id = b.user_id
		  AND e.category = b.category
		  AND to_char(e.spent_on, 'YYYY-MM') = b.month
		 WHERE b.user_id = $1 AND b.month = $2
		 GROUP BY b.category, b.month, b.limit_cents, b.currency
		 ORDER BY b.category`, userID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []SummaryLine
	for rows.Next() {
		var line SummaryLine
		if err := rows.Scan(&line.Category, &line.Month, &line.LimitCents, &line.Currency, &line.SpentCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListExceeded returns every budget whose month-to-date spending has passed
// its cap, across all users. Consumed by the background scan job.
func (r *Repository) ListExceeded(ctx context.Context, month string) ([]ExceededBudget, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT b.id, b.user_id, b.category, b.limit_cents,
		        COALESCE(SUM(e.amount_cents), 0) AS spent_cents
		 FROM budgets b
		 LEFT JOIN expenses e
		   ON e.user_id = b.user_id
		  AND e.category = b.category
		  AND to_char(e.spent_on, 'YYYY-MM') = b.month
		 WHERE b.month = $1
		 GROUP BY b.id, b.user_id, b.category, b.limit_cents
		 HAVING COALESCE(SUM(e.amount_cents), 0) > b.limit_cents
		 ORDER BY b.id`, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExceededBudget
	for rows.Next() {
		var eb ExceededBudget
		if err := rows.Scan(&eb.BudgetID, &eb.UserID, &eb.Category, &eb.LimitCents, &eb.SpentCents); err != nil {
			return nil, err
		}
		out = append(out, eb)
	}
	return out, rows.Err()
}

// ExceededBudget identifies an overspent budget for the scan job.
type ExceededBudget struct {
	BudgetID   int64
	UserID     int64
	Category   string
	LimitCents int64
	SpentCents int64
}

func scanBudgets(rows pgx.Rows) ([]Budget, error) {
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	err := row.Scan(&b.ID, &b.UserID, &b.Category, &b.Month, &b.LimitCents, &b.Currency, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}
