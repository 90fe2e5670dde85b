package invoicing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// ProductReader resolves catalog products for line snapshots.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// TxRepository is the transactional surface used to issue invoices.
type TxRepository interface {
	ProductReader
	NextInvoiceNumber(ctx context.Context) (int64, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	CountCorrections(ctx context.Context, parentID int64) (int, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
}

// Builder computes invoice lines and totals and issues numbered documents.
type Builder struct {
	clock shared.Clock
}

// NewBuilder constructs a Builder.
func NewBuilder(clock shared.Clock) *Builder {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Builder{clock: clock}
}

// LineTotals returns the rounded net and gross value of qty units.
func LineTotals(priceNet, taxRate decimal.Decimal, qty int) (decimal.Decimal, decimal.Decimal) {
	net := priceNet.Mul(decimal.NewFromInt(int64(qty))).Round(2)
	gross := net.Mul(hundred.Add(taxRate)).Div(hundred).Round(2)
	return net, gross
}

// Build resolves every line against the catalog and computes totals. Nothing is persisted.
func (b *Builder) Build(ctx context.Context, products ProductReader, d Draft) (Invoice, error) {
	if strings.TrimSpace(d.Buyer.Name) == "" {
		return Invoice{}, fmt.Errorf("%w: buyer name required", shared.ErrValidation)
	}
	status := d.PaymentStatus
	if status == "" {
		status = PaymentPending
	}
	if !status.Valid() {
		return Invoice{}, fmt.Errorf("%w: unknown payment status %q", shared.ErrValidation, status)
	}
	items, err := b.buildItems(ctx, products, d.Lines, d.CheckStock)
	if err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		UserID:          d.UserID,
		OrderID:         d.OrderID,
		CreatedBy:       d.ActorID,
		BuyerName:       strings.TrimSpace(d.Buyer.Name),
		BuyerNIP:        strings.TrimSpace(d.Buyer.NIP),
		BuyerAddress:    strings.TrimSpace(d.Buyer.Address),
		ShippingAddress: strings.TrimSpace(d.Buyer.ShippingAddress),
		CreatedAt:       b.clock.Now(),
		PaymentStatus:   status,
		Items:           items,
	}
	if inv.UserID == 0 {
		inv.UserID = d.ActorID
	}
	applyTotals(&inv)
	return inv, nil
}

// BuildCorrection builds a correction of parent. Buyer fields left empty are copied from the parent.
func (b *Builder) BuildCorrection(ctx context.Context, products ProductReader, parent Invoice, d CorrectionDraft) (Invoice, error) {
	if parent.IsCorrection {
		return Invoice{}, ErrCorrectionOfCorrection
	}
	reason := strings.TrimSpace(d.Reason)
	if reason == "" {
		return Invoice{}, fmt.Errorf("%w: correction reason required", shared.ErrValidation)
	}
	buyer := Buyer{
		Name:            firstNonEmpty(d.Buyer.Name, parent.BuyerName),
		NIP:             firstNonEmpty(d.Buyer.NIP, parent.BuyerNIP),
		Address:         firstNonEmpty(d.Buyer.Address, parent.BuyerAddress),
		ShippingAddress: firstNonEmpty(d.Buyer.ShippingAddress, parent.ShippingAddress),
	}
	inv, err := b.Build(ctx, products, Draft{
		Buyer:         buyer,
		Lines:         d.Lines,
		ActorID:       d.ActorID,
		UserID:        parent.UserID,
		OrderID:       parent.OrderID,
		PaymentStatus: parent.PaymentStatus,
	})
	if err != nil {
		return Invoice{}, err
	}
	inv.IsCorrection = true
	inv.ParentID = parent.ID
	inv.ParentNumber = parent.Number
	inv.CorrectionReason = reason
	return inv, nil
}

// Issue builds, numbers and stores a regular invoice inside the caller's transaction.
func (b *Builder) Issue(ctx context.Context, tx TxRepository, d Draft) (Invoice, error) {
	inv, err := b.Build(ctx, tx, d)
	if err != nil {
		return Invoice{}, err
	}
	number, err := tx.NextInvoiceNumber(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: next number: %w", err)
	}
	inv.Number = number
	if err := tx.InsertInvoice(ctx, &inv); err != nil {
		return Invoice{}, fmt.Errorf("invoicing: insert invoice: %w", err)
	}
	inv.FullNumber = FullNumber(inv)
	return inv, nil
}

// IssueCorrection locks the parent, assigns the next correction sequence and stores the correction.
// It returns the correction and its parent.
func (b *Builder) IssueCorrection(ctx context.Context, tx TxRepository, parentID int64, d CorrectionDraft) (Invoice, Invoice, error) {
	parent, err := tx.GetInvoiceForUpdate(ctx, parentID)
	if err != nil {
		return Invoice{}, Invoice{}, err
	}
	inv, err := b.BuildCorrection(ctx, tx, parent, d)
	if err != nil {
		return Invoice{}, Invoice{}, err
	}
	existing, err := tx.CountCorrections(ctx, parent.ID)
	if err != nil {
		return Invoice{}, Invoice{}, fmt.Errorf("invoicing: count corrections: %w", err)
	}
	inv.CorrectionSeq = NextCorrectionSeq(existing)
	if err := tx.InsertInvoice(ctx, &inv); err != nil {
		return Invoice{}, Invoice{}, fmt.Errorf("invoicing: insert correction: %w", err)
	}
	inv.FullNumber = FullNumber(inv)
	parent.FullNumber = FullNumber(parent)
	return inv, parent, nil
}

func (b *Builder) buildItems(ctx context.Context, products ProductReader, lines []LineRequest, checkStock bool) ([]Item, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		product, err := products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if checkStock && product.StockQuantity < line.Quantity {
			return nil, &shared.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.StockQuantity,
				Requested:   line.Quantity,
			}
		}
		price := product.SellPriceNet
		if line.PriceNet.Valid {
			price = line.PriceNet.Decimal
		}
		tax := product.TaxRate
		if line.TaxRate.Valid {
			tax = line.TaxRate.Decimal
		}
		if price.IsNegative() {
			return nil, catalog.ErrNegativePrice
		}
		if !catalog.ValidTaxRate(tax) {
			return nil, catalog.ErrInvalidTaxRate
		}
		net, gross := LineTotals(price, tax, line.Quantity)
		items = append(items, Item{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			PriceNet:    price,
			TaxRate:     tax,
			TotalNet:    net,
			TotalGross:  gross,
		})
	}
	return items, nil
}

func applyTotals(inv *Invoice) {
	net, gross := decimal.Zero, decimal.Zero
	for _, item := range inv.Items {
		net = net.Add(item.TotalNet)
		gross = gross.Add(item.TotalGross)
	}
	inv.TotalNet = net
	inv.TotalGross = gross
	inv.TotalVAT = gross.Sub(net)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
