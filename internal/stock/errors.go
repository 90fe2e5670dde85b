package stock

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrInvalidQuantity is returned when a movement carries no usable quantity.
var ErrInvalidQuantity = fmt.Errorf("%w: stock: invalid quantity", shared.ErrValidation)
