package budgets

import (
	"context"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pennywise-app/pennywise/internal/shared"
)

// RepositoryPort defines data access methods for budgets.
type RepositoryPort interface {
	ListByUser(ctx context.Context, userID int64) ([]Budget, error)
	Get(ctx context.Context, id int64) (Budget, error)
	OwnerID(ctx context.Context, id int64) (int64, error)
	Create(ctx context.Context, b Budget) (Budget, error)
	Update(ctx context.Context, b Budget) (Budget, error)
	Delete(ctx context.Context, id int64) error
	SummaryForMonth(ctx context.Context, userID int64, month string) ([]SummaryLine, error)
	ListExceeded(ctx context.Context, month string) ([]ExceededBudget, error)
}

// Service handles budget business logic.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditSink
	printer *message.Printer
}

// NewService builds a Service instance. The audit sink may be nil.
func NewService(repo RepositoryPort, audit shared.AuditSink) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		printer: message.NewPrinter(language.AmericanEnglish),
	}
}

// ListByUser returns the user's budgets.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Budget, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get fetches one budget.
func (s *Service) Get(ctx context.Context, id int64) (Budget, error) {
	return s.repo.Get(ctx, id)
}

// OwnerID resolves the owning user of a budget.
func (s *Service) OwnerID(ctx context.Context, id int64) (int64, error) {
	return s.repo.OwnerID(ctx, id)
}

// Create inserts a new budget.
func (s *Service) Create(ctx context.Context, actorID int64, b Budget) (Budget, error) {
	created, err := s.repo.Create(ctx, b)
	if err != nil {
		return Budget{}, err
	}
	s.record(actorID, "budgets.create", created.ID)
	return created, nil
}

// Update rewrites a budget.
func (s *Service) Update(ctx context.Context, actorID int64, b Budget) (Budget, error) {
	updated, err := s.repo.Update(ctx, b)
	if err != nil {
		return Budget{}, err
	}
	s.record(actorID, "budgets.update", updated.ID)
	return updated, nil
}

// Delete removes a budget.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(actorID, "budgets.delete", id)
	return nil
}

// SummaryRow is a display-ready summary line with localized amounts.
type SummaryRow struct {
	Category  string `json:"category"`
	Month     string `json:"month"`
	Limit     string `json:"limit"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
	Exceeded  bool   `json:"exceeded"`
}

// Summary returns spending against every budget the user holds for the
// month, with amounts formatted for display.
func (s *Service) Summary(ctx context.Context, userID int64, month string) ([]SummaryRow, error) {
	lines, err := s.repo.SummaryForMonth(ctx, userID, month)
	if err != nil {
		return nil, err
	}
	rows := make([]SummaryRow, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, SummaryRow{
			Category:  line.Category,
			Month:     line.Month,
			Limit:     s.formatAmount(line.LimitCents, line.Currency),
			Spent:     s.formatAmount(line.SpentCents, line.Currency),
			Remaining: s.formatAmount(line.LimitCents-line.SpentCents, line.Currency),
			Exceeded:  line.Exceeded(),
		})
	}
	return rows, nil
}

// ScanExceeded lists overspent budgets for the month and records an audit
// event per finding. Returns the number of findings.
func (s *Service) ScanExceeded(ctx context.Context, month string) (int, error) {
	exceeded, err := s.repo.ListExceeded(ctx, month)
	if err != nil {
		return 0, err
	}
	for _, eb := range exceeded {
		if s.audit != nil {
			s.audit.Record(shared.AuditEvent{
				ActorID:  eb.UserID,
				Action:   "budgets.exceeded",
				Entity:   "budget",
				EntityID: strconv.FormatInt(eb.BudgetID, 10),
				Meta: map[string]any{
					"category":    eb.Category,
					"limit_cents": eb.LimitCents,
					"spent_cents": eb.SpentCents,
				},
			})
		}
	}
	return len(exceeded), nil
}

func (s *Service) formatAmount(cents int64, currency string) string {
	return s.printer.Sprintf("%s %.2f", currency, float64(cents)/100)
}

func (s *Service) record(actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	s.audit.Record(shared.AuditEvent{
		ActorID:  actorID,
		Action:   action,
		Entity:   "budget",
		EntityID: strconv.FormatInt(entityID, 10),
	})
}
