package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	maxTaxRate = decimal.NewFromInt(100)

	// ErrInvalidTaxRate is returned for tax rates outside 0..100.
	ErrInvalidTaxRate = fmt.Errorf("%w: tax rate must be between 0 and 100", shared.ErrValidation)
	// ErrNegativePrice is returned for negative prices.
	ErrNegativePrice = fmt.Errorf("%w: price cannot be negative", shared.ErrValidation)
)

// ValidTaxRate reports whether rate is a percentage in 0..100.
func ValidTaxRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(maxTaxRate)
}

func validateInput(in ProductInput) error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: product code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: product name is required", shared.ErrValidation)
	}
	if in.SellPriceNet.IsNegative() || in.BuyPrice.IsNegative() {
		return ErrNegativePrice
	}
	if !ValidTaxRate(in.TaxRate) {
		return ErrInvalidTaxRate
	}
	return nil
}
