package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Repository runs the report queries.
type Repository interface {
	LowStock(ctx context.Context, filter LowStockFilter) ([]LowStockItem, int, error)
	SalesByDay(ctx context.Context, from, to time.Time) ([]SalesDay, error)
}

// Service builds reports through the cache.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService builds the service. A nil cache serves every report straight from the repository.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// LowStock lists products whose stock is at or below the threshold.
func (s *Service) LowStock(ctx context.Context, filter LowStockFilter) (LowStockPage, error) {
	if s.repo == nil {
		return LowStockPage{}, errors.New("reports: repository not configured")
	}
	if filter.Threshold < 0 {
		return LowStockPage{}, fmt.Errorf("%w: threshold must not be negative", shared.ErrValidation)
	}
	filter.Page, filter.PageSize = shared.NormalizePage(filter.Page, filter.PageSize)

	key, err := s.cache.BuildKey(ctx, "low_stock", strconv.Itoa(filter.Threshold), filter.Search,
		strconv.Itoa(filter.Page), strconv.Itoa(filter.PageSize))
	if err != nil {
		s.logger.Warn("report cache key", slog.Any("error", err))
		return s.lowStock(ctx, filter)
	}
	var page LowStockPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		return s.lowStock(ctx, filter)
	})
	return page, err
}

func (s *Service) lowStock(ctx context.Context, filter LowStockFilter) (LowStockPage, error) {
	items, total, err := s.repo.LowStock(ctx, filter)
	if err != nil {
		return LowStockPage{}, err
	}
	if items == nil {
		items = []LowStockItem{}
	}
	return LowStockPage{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize, Threshold: filter.Threshold}, nil
}

// SalesSummary totals orders per creation day between from and to. Zero bounds are open.
func (s *Service) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	if s.repo == nil {
		return SalesSummary{}, errors.New("reports: repository not configured")
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return SalesSummary{}, fmt.Errorf("%w: date_from after date_to", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "sales", boundKey(from), boundKey(to))
	if err != nil {
		s.logger.Warn("report cache key", slog.Any("error", err))
		return s.salesSummary(ctx, from, to)
	}
	var summary SalesSummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
		return s.salesSummary(ctx, from, to)
	})
	return summary, err
}

func (s *Service) salesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	days, err := s.repo.SalesByDay(ctx, from, to)
	if err != nil {
		return SalesSummary{}, err
	}
	summary := SalesSummary{Items: days, TotalAmount: decimal.Zero}
	if summary.Items == nil {
		summary.Items = []SalesDay{}
	}
	for _, d := range days {
		summary.TotalOrders += d.Orders
		summary.TotalAmount = summary.TotalAmount.Add(d.TotalAmount)
	}
	summary.TotalAmount = summary.TotalAmount.Round(2)
	if !from.IsZero() {
		summary.DateFrom = &from
	}
	if !to.IsZero() {
		summary.DateTo = &to
	}
	return summary, nil
}

// Refresh drops every cached report.
func (s *Service) Refresh(ctx context.Context) error {
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("report cache bumped", slog.Int64("version", ver))
	return nil
}

func boundKey(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.Unix(), 10)
}
