package expenses

import (
	"errors"
	"time"
)

// ErrNotFound indicates the expense does not exist.
var ErrNotFound = errors.New("expenses: not found")

// Expense represents a single spending entry owned by a user.
type Expense struct {
	ID          int64
	UserID      int64
	Category    string
	Description string
	AmountCents int64
	Currency    string
	SpentOn     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
