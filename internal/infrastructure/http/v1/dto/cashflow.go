package dto

import (
	"time"

	"stockledger/internal/domain/cashflow"
)

// CashFlowRequest holds the query parameters of GET /cashflow.
// Either q (day, month, year or free text) or a from/to range is used.
type CashFlowRequest struct {
	Q    string `form:"q"`
	From string `form:"from"`
	To   string `form:"to"`
}

// ToQuery converts the parameters to a cash-flow query.
func (r CashFlowRequest) ToQuery(now time.Time) (cashflow.Query, error) {
	if r.From != "" || r.To != "" {
		to := r.To
		if to == "" {
			to = r.From
		}
		from := r.From
		if from == "" {
			from = to
		}
		return cashflow.RangeQuery(from, to)
	}
	return cashflow.ParseQuery(r.Q, now)
}
