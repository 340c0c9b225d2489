package cashflow

import (
	"context"
	"time"

	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
)

// Repository reads the three streams of the feed.
type Repository interface {
	// Rows returns classified rows in the query's date range, or matching its search text.
	// Payment rows are dated by pay_date and carry their movement's date in MovementDate.
	Rows(ctx context.Context, scope tenant.Scope, q Query) ([]Row, error)

	// BalanceBefore sums the cash contributions of every row dated strictly before day.
	BalanceBefore(ctx context.Context, scope tenant.Scope, day time.Time) (types.Money, error)
}
