package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads recorded audit events.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// Window returns events matching the filters, newest first.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= ", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at <= ", filters.To)
	}
	if filters.ActorID > 0 {
		add("actor_id = ", filters.ActorID)
	}
	if e := strings.TrimSpace(filters.Entity); e != "" {
		add("entity = ", e)
	}
	if a := strings.TrimSpace(filters.Action); a != "" {
		add("action = ", a)
	}

	query := `SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY occurred_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev   Event
			at   time.Time
			meta []byte
		)
		if err := rows.Scan(&ev.ID, &at, &ev.ActorID, &ev.Action, &ev.Entity, &ev.EntityID, &meta); err != nil {
			return nil, err
		}
		ev.At = at
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &ev.Meta)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
