// Package calc holds the pure money math for documents: per-line totals
// and the document totals aggregation. Nothing here touches storage.
package calc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/billforge/billforge/pkg/money"
)

// ErrInvalidInput rejects negative quantities, prices or rates, and line
// discounts that exceed the undiscounted line amount.
var ErrInvalidInput = errors.New("invalid_input")

// LineInput is one line as entered, before any rounding.
type LineInput struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// TotalsResult is a full document recompute.
type TotalsResult struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	AfterDiscount  decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// LineTotal computes round2(quantity * unitPrice) - discount. The
// discount is a flat amount and must not exceed the undiscounted line
// amount; unlike the document-level discount it is rejected rather than
// clamped, so bad line input surfaces at entry time.
func LineTotal(quantity, unitPrice, discount decimal.Decimal) (decimal.Decimal, error) {
	if quantity.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if unitPrice.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	if discount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: discount must not be negative", ErrInvalidInput)
	}

	gross := quantity.Mul(unitPrice)
	if discount.GreaterThan(gross) {
		return decimal.Zero, fmt.Errorf("%w: discount exceeds line amount", ErrInvalidInput)
	}

	return money.Round2(gross).Sub(discount), nil
}

// Totals recomputes every derived amount from scratch. discount is a
// flat amount when isAmountDiscount is true, otherwise a percentage of
// the subtotal. A document discount larger than the subtotal clamps
// afterDiscount at zero instead of failing; tax applies to the
// discounted base.
func Totals(lines []LineInput, discount decimal.Decimal, isAmountDiscount bool, taxRate decimal.Decimal) (TotalsResult, error) {
	if discount.IsNegative() {
		return TotalsResult{}, fmt.Errorf("%w: document discount must not be negative", ErrInvalidInput)
	}
	if taxRate.IsNegative() {
		return TotalsResult{}, fmt.Errorf("%w: tax rate must not be negative", ErrInvalidInput)
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		lineTotal, err := LineTotal(line.Quantity, line.UnitPrice, line.Discount)
		if err != nil {
			return TotalsResult{}, fmt.Errorf("line %d: %w", i, err)
		}
		subtotal = subtotal.Add(lineTotal)
	}

	discountAmount := discount
	if !isAmountDiscount {
		discountAmount = money.Percent(subtotal, discount)
	}
	discountAmount = money.Round2(discountAmount)

	afterDiscount := subtotal.Sub(discountAmount)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}

	taxAmount := money.Percent(afterDiscount, taxRate)

	return TotalsResult{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		AfterDiscount:  afterDiscount,
		TaxAmount:      taxAmount,
		Total:          afterDiscount.Add(taxAmount),
	}, nil
}
