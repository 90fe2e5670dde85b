// Package documents renders invoices and goods-issue notes to PDF.
package documents

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

// Document kinds used in cache keys and render jobs.
const (
	KindInvoice   = "invoice"
	KindWarehouse = "wz"
)

// InvoiceReader loads invoices with their display number.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, id int64) (invoicing.Invoice, error)
}

// DocumentReader loads goods-issue notes.
type DocumentReader interface {
	Get(ctx context.Context, id int64) (warehouse.Document, error)
}

// Renderer converts HTML to PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Service produces printable documents.
type Service struct {
	invoices  InvoiceReader
	documents DocumentReader
	renderer  Renderer
	cache     *Cache
	seller    Seller
	templates *template.Template
	group     singleflight.Group
	logger    *slog.Logger
}

// NewService parses the document templates and builds Service.
func NewService(invoices InvoiceReader, documents DocumentReader, renderer Renderer, cache *Cache, seller Seller, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("documents: parse templates: %w", err)
	}
	return &Service{
		invoices:  invoices,
		documents: documents,
		renderer:  renderer,
		cache:     cache,
		seller:    seller,
		templates: tpl,
		logger:    logger,
	}, nil
}

// InvoiceHTML renders an invoice. Corrections print the corrected parent next to the new content.
func (s *Service) InvoiceHTML(ctx context.Context, inv invoicing.Invoice) (string, error) {
	var parent *invoicing.Invoice
	if inv.IsCorrection && inv.ParentID != 0 {
		p, err := s.invoices.GetInvoice(ctx, inv.ParentID)
		if err != nil {
			return "", fmt.Errorf("documents: load parent invoice %d: %w", inv.ParentID, err)
		}
		parent = &p
	}
	return execute(s.templates, "invoice", newInvoiceView(s.seller, inv, parent))
}

// WarehouseHTML renders a goods-issue note.
func (s *Service) WarehouseHTML(ctx context.Context, doc warehouse.Document) (string, error) {
	invoiceNumber := ""
	if doc.InvoiceID != 0 {
		inv, err := s.invoices.GetInvoice(ctx, doc.InvoiceID)
		switch {
		case err == nil:
			invoiceNumber = inv.FullNumber
		case !errors.Is(err, shared.ErrNotFound):
			return "", fmt.Errorf("documents: load invoice %d: %w", doc.InvoiceID, err)
		}
	}
	return execute(s.templates, "warehouse", newWarehouseView(s.seller, doc, invoiceNumber))
}

// InvoicePDF returns the PDF of an invoice, rendering it on a cache miss.
func (s *Service) InvoicePDF(ctx context.Context, id int64) ([]byte, error) {
	inv, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	key := Key(KindInvoice, inv.ID, string(inv.PaymentStatus))
	return s.pdf(ctx, key, func(ctx context.Context) (string, error) {
		return s.InvoiceHTML(ctx, inv)
	})
}

// WarehousePDF returns the PDF of a goods-issue note, rendering it on a cache miss.
func (s *Service) WarehousePDF(ctx context.Context, id int64) ([]byte, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key := Key(KindWarehouse, doc.ID, string(doc.Status))
	return s.pdf(ctx, key, func(ctx context.Context) (string, error) {
		return s.WarehouseHTML(ctx, doc)
	})
}

// Prerender warms the cache for one document.
func (s *Service) Prerender(ctx context.Context, kind string, id int64) error {
	var err error
	switch kind {
	case KindInvoice:
		_, err = s.InvoicePDF(ctx, id)
	case KindWarehouse:
		_, err = s.WarehousePDF(ctx, id)
	default:
		err = fmt.Errorf("%w: unknown document kind %q", shared.ErrValidation, kind)
	}
	return err
}

func (s *Service) pdf(ctx context.Context, key string, build func(context.Context) (string, error)) ([]byte, error) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("document cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if ok {
		return cached, nil
	}
	if s.renderer == nil {
		return nil, fmt.Errorf("documents: %w: renderer not configured", shared.ErrGatewayUnavailable)
	}

	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		html, err := build(ctx)
		if err != nil {
			return nil, err
		}
		pdf, err := s.renderer.RenderHTML(ctx, html)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, pdf); err != nil {
			s.logger.Warn("document cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return pdf, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}
