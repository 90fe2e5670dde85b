package stock

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents goods received.
	MovementIn MovementType = "IN"
	// MovementOut represents goods issued, e.g. order fulfillment.
	MovementOut MovementType = "OUT"
	// MovementAdjustment carries a caller-signed correction.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementLoss represents shrinkage or damage.
	MovementLoss MovementType = "LOSS"

	legacyAdjust = "ADJUST"
)

// Document types referenced by movements.
const (
	DocInvoice   = "INVOICE"
	DocOrder     = "ORDER"
	DocWarehouse = "WZ"
)

// DefaultDeliveryReason is recorded when a delivery carries no reason.
const DefaultDeliveryReason = "Dostawa"

// NormalizeType maps stored type values onto MovementType, folding the legacy ADJUST spelling.
func NormalizeType(raw string) MovementType {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if t == legacyAdjust {
		return MovementAdjustment
	}
	return MovementType(t)
}

// ParseMovementType validates a user supplied movement type.
func ParseMovementType(raw string) (MovementType, error) {
	t := NormalizeType(raw)
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementLoss:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, raw)
	}
}

// Movement is an append-only ledger row. Qty holds the signed delta applied to the product.
type Movement struct {
	ID           int64        `json:"id"`
	ProductID    int64        `json:"product_id"`
	Type         MovementType `json:"type"`
	Qty          int          `json:"qty"`
	BalanceAfter int          `json:"balance_after"`
	Reason       string       `json:"reason,omitempty"`
	Supplier     string       `json:"supplier,omitempty"`
	DocType      string       `json:"doc_type,omitempty"`
	DocID        int64        `json:"doc_id,omitempty"`
	ActorID      int64        `json:"user_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ProductName  string       `json:"product_name,omitempty"`
	ProductCode  string       `json:"product_code,omitempty"`
}

// MovementInput requests one ledger movement. Qty is a magnitude for IN/OUT/LOSS and a signed delta for ADJUSTMENT.
type MovementInput struct {
	ProductID int64
	Type      MovementType
	Qty       int
	Reason    string
	Supplier  string
	DocType   string
	DocID     int64
	ActorID   int64
}

// Delta returns the signed change the movement applies to stock.
func (in MovementInput) Delta() (int, error) {
	switch in.Type {
	case MovementIn:
		if in.Qty <= 0 {
			return 0, ErrInvalidQuantity
		}
		return in.Qty, nil
	case MovementOut, MovementLoss:
		if in.Qty <= 0 {
			return 0, ErrInvalidQuantity
		}
		return -in.Qty, nil
	case MovementAdjustment:
		if in.Qty == 0 {
			return 0, ErrInvalidQuantity
		}
		return in.Qty, nil
	default:
		return 0, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, in.Type)
	}
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID int64
	ActorID   int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Search    string
	Page      int
	PerPage   int
}

// AdjustInput is the manual adjustment request.
type AdjustInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Type      string `json:"type" validate:"omitempty,oneof=ADJUSTMENT ADJUST LOSS adjustment adjust loss"`
	Qty       int    `json:"qty" validate:"ne=0"`
	Reason    string `json:"reason" validate:"required,max=255"`
	Supplier  string `json:"supplier" validate:"max=255"`
}

// DeliveryLine is one received product.
type DeliveryLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

// DeliveryInput receives goods for several products at once.
type DeliveryInput struct {
	Items    []DeliveryLine `json:"items" validate:"required,min=1,dive"`
	Reason   string         `json:"reason" validate:"max=255"`
	Supplier string         `json:"supplier" validate:"max=255"`
}

// DeliveryResult reports accepted delivery lines.
type DeliveryResult struct {
	Accepted  int        `json:"accepted"`
	Skipped   int        `json:"skipped"`
	Movements []Movement `json:"movements"`
}
