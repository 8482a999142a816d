package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	events []Event
	err    error

	lastFilters TimelineFilters
	lastLimit   int
	lastOffset  int
}

func (r *memoryRepo) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error) {
	r.lastFilters = filters
	r.lastLimit = limit
	r.lastOffset = offset
	if r.err != nil {
		return nil, r.err
	}
	if offset >= len(r.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.events) {
		end = len(r.events)
	}
	return r.events[offset:end], nil
}

func makeEvents(n int) []Event {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event{
			ID:      int64(n - i),
			At:      base.Add(-time.Duration(i) * time.Minute),
			ActorID: 7,
			Action:  "rbac.role.create",
			Entity:  "role",
		})
	}
	return events
}

func TestTimelineDefaultsAndProbe(t *testing.T) {
	repo := &memoryRepo{events: makeEvents(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 20, result.Paging.PageSize)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 21, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)
}

func TestTimelineLastPage(t *testing.T) {
	repo := &memoryRepo{events: makeEvents(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 20, repo.lastOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &memoryRepo{events: makeEvents(60)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
	require.Equal(t, 51, repo.lastLimit)
}

func TestTimelineEmptyWindowReturnsEmptySlice(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 9})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.False(t, result.Paging.HasNext)
}

func TestTimelinePropagatesRepositoryError(t *testing.T) {
	repo := &memoryRepo{err: errors.New("db down")}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}

func TestTimelinePassesFiltersThrough(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Timeline(context.Background(), TimelineFilters{
		From:    from,
		ActorID: 42,
		Entity:  "role",
		Action:  "rbac.role.delete",
	})
	require.NoError(t, err)
	require.Equal(t, from, repo.lastFilters.From)
	require.Equal(t, int64(42), repo.lastFilters.ActorID)
	require.Equal(t, "role", repo.lastFilters.Entity)
	require.Equal(t, "rbac.role.delete", repo.lastFilters.Action)
}
