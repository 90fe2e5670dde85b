package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes product writes available inside a transaction.
type TxRepository interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	InsertProduct(ctx context.Context, p Product) (int64, error)
	UpdateProductDetails(ctx context.Context, p Product) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages catalog entries.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	clock shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Service{repo: repo, audit: audit, clock: clock}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	items, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get loads a product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = tx.GetProduct(ctx, id)
		return err
	})
	return product, err
}

// Create registers a new product with zero stock.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	now := s.clock.Now()
	product := applyInput(Product{CreatedAt: now, UpdatedAt: now}, in)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "PRODUCT_CREATE", map[string]any{"product_id": product.ID, "code": product.Code})
	return product, nil
}

// Update edits catalog fields. Existing invoice lines keep their own snapshots.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product = applyInput(current, in)
		product.UpdatedAt = s.clock.Now()
		return tx.UpdateProductDetails(ctx, product)
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "PRODUCT_UPDATE", map[string]any{"product_id": product.ID})
	return product, nil
}

func applyInput(p Product, in ProductInput) Product {
	p.Code = strings.TrimSpace(in.Code)
	p.Name = strings.TrimSpace(in.Name)
	p.SellPriceNet = in.SellPriceNet
	p.TaxRate = in.TaxRate
	p.BuyPrice = in.BuyPrice
	p.Location = in.Location
	p.Category = in.Category
	p.Supplier = in.Supplier
	p.ImageURL = in.ImageURL
	p.Unit = in.Unit
	if p.Unit == "" {
		p.Unit = DefaultUnit
	}
	return p
}

func (s *Service) record(ctx context.Context, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Resource: "products", Meta: meta})
}
