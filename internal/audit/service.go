package audit

import (
	"context"
	"errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository lists stored audit records.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
}

// Service serves the audit log listing.
type Service struct {
	repo Repository
}

// NewService builds the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List clamps paging and returns one page of entries.
func (s *Service) List(ctx context.Context, filter Filter) (Page, error) {
	if s.repo == nil {
		return Page{}, errors.New("audit: repository not configured")
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Entry{}
	}
	page := Page{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}
	page.HasNext = filter.Page*filter.PageSize < total
	if filter.Page > 1 {
		page.PrevPage = filter.Page - 1
	}
	if page.HasNext {
		page.NextPage = filter.Page + 1
	}
	return page, nil
}
