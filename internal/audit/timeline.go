package audit

import (
	"encoding/json"
	"time"
)

// Filter narrows the audit log listing. Action and Resource match case-insensitive substrings.
type Filter struct {
	Action   string
	Resource string
	Status   string
	ActorID  int64
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Entry is one stored audit record.
type Entry struct {
	ID         int64           `json:"id"`
	ActorID    *int64          `json:"user_id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	Status     string          `json:"status"`
	IP         *string         `json:"ip"`
	OccurredAt time.Time       `json:"ts"`
	Meta       json.RawMessage `json:"meta"`
}

// Page is one page of entries with paging metadata.
type Page struct {
	Items    []Entry `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	HasNext  bool    `json:"has_next"`
	PrevPage int     `json:"prev_page,omitempty"`
	NextPage int     `json:"next_page,omitempty"`
}
