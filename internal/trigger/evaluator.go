// Package trigger holds the pure decision rule for conditional orders.
package trigger

import (
	"github.com/shopspring/decimal"

	"triggerflow/internal/domain/models"
)

// ShouldExecute reports whether an order of the given kind fires at the
// current pair price. LIMIT and STOP_LOSS intentionally share a rule: both
// encode "acceptable to transact once the price has moved to or below this
// level" for the input token being sold; callers set the trigger price
// accordingly. Unknown kinds never fire.
func ShouldExecute(kind models.OrderKind, triggerPrice, currentPrice decimal.Decimal) bool {
	switch kind {
	case models.KindLimit, models.KindStopLoss:
		return currentPrice.LessThanOrEqual(triggerPrice)
	case models.KindTakeProfit:
		return currentPrice.GreaterThanOrEqual(triggerPrice)
	default:
		return false
	}
}
