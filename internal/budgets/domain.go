package budgets

import (
	"errors"
	"time"
)

// ErrNotFound indicates the budget does not exist.
var ErrNotFound = errors.New("budgets: not found")

// Budget caps spending for one category in one month.
type Budget struct {
	ID         int64
	UserID     int64
	Category   string
	Month      string // YYYY-MM
	LimitCents int64
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SummaryLine reports spending against a budget for one category.
type SummaryLine struct {
	Category   string
	Month      string
	LimitCents int64
	SpentCents int64
	Currency   string
}

// Exceeded reports whether spending has passed the cap.
func (l SummaryLine) Exceeded() bool {
	return l.SpentCents > l.LimitCents
}
