package stock

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/catalog"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository is the transactional surface the ledger writes through.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error)
	UpdateProductStock(ctx context.Context, id int64, qty int) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// Policy configures ledger guards.
type Policy struct {
	AllowNegativeStock bool
}

// Ledger applies movements to the product stock counter.
type Ledger struct {
	policy Policy
	clock  shared.Clock
}

// NewLedger builds a Ledger.
func NewLedger(policy Policy, clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Ledger{policy: policy, clock: clock}
}

// AllowsNegative reports the configured policy.
func (l *Ledger) AllowsNegative() bool {
	return l.policy.AllowNegativeStock
}

// Apply locks the product row, checks the resulting quantity, writes the new counter and appends
// one movement row. The caller owns the transaction; both writes commit or roll back together.
func (l *Ledger) Apply(ctx context.Context, tx TxRepository, in MovementInput) (Movement, error) {
	delta, err := in.Delta()
	if err != nil {
		return Movement{}, err
	}
	product, err := tx.GetProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	newQty := product.StockQuantity + delta
	if newQty < 0 && !l.policy.AllowNegativeStock {
		return Movement{}, &shared.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.StockQuantity,
			Requested:   -delta,
		}
	}
	if err := tx.UpdateProductStock(ctx, product.ID, newQty); err != nil {
		return Movement{}, fmt.Errorf("stock: update product %d: %w", product.ID, err)
	}
	actor := in.ActorID
	if actor == 0 {
		actor = shared.ActorFromContext(ctx)
	}
	movement := Movement{
		ProductID:    product.ID,
		Type:         in.Type,
		Qty:          delta,
		BalanceAfter: newQty,
		Reason:       in.Reason,
		Supplier:     in.Supplier,
		DocType:      in.DocType,
		DocID:        in.DocID,
		ActorID:      actor,
		CreatedAt:    l.clock.Now(),
		ProductName:  product.Name,
		ProductCode:  product.Code,
	}
	id, err := tx.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, fmt.Errorf("stock: insert movement: %w", err)
	}
	movement.ID = id
	return movement, nil
}
