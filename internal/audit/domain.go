package audit

import "time"

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// Event is one recorded audit entry.
type Event struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta"`
}

// PagingInfo carries probe-based pagination metadata. HasNext comes from
// fetching one row past the page boundary, not a count query.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles a timeline page with its paging metadata.
type Result struct {
	Rows   []Event    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
