package cashflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Service builds cash-flow reports. It only reads committed state.
type Service struct {
	repo Repository
	txm  tx.Manager
}

// NewService creates a cash-flow service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{repo: repo, txm: txm}
}

// GetCashFlow returns the merged feed for q with its running balance and
// the summary of the reference day (q.To, or the last feed day for a search).
func (s *Service) GetCashFlow(ctx context.Context, scope tenant.Scope, q Query) (*Report, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	var (
		rows    []Row
		opening = types.Zero()
	)
	// One transaction so the opening balance and the rows see the same snapshot.
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if rows, err = s.repo.Rows(ctx, scope, q); err != nil {
			return fmt.Errorf("cash-flow rows: %w", err)
		}
		if !q.IsSearch() {
			if opening, err = s.repo.BalanceBefore(ctx, scope, *q.From); err != nil {
				return fmt.Errorf("opening balance: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	report := Build(q, opening, rows)
	logger.Debug(ctx, "cash-flow report built",
		"rows", len(report.Rows),
		"search", q.Search,
		"closing", report.Closing.String(),
	)
	return report, nil
}

// Build orders rows, computes contributions and running balances, and
// summarizes the reference day.
func Build(q Query, opening types.Money, rows []Row) *Report {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return id.Compare(a.ID, b.ID) < 0
	})

	running := opening
	for i := range rows {
		rows[i].Contribution = Contribution(rows[i].Kind, rows[i].Montant)
		running = running.Add(rows[i].Contribution)
		rows[i].Running = running
	}

	report := &Report{Query: q, Opening: opening, Closing: running, Rows: rows}
	if rows == nil {
		report.Rows = []Row{}
	}

	var day time.Time
	switch {
	case q.To != nil:
		day = *q.To
	case len(rows) > 0:
		day = rows[len(rows)-1].Date
	default:
		return report
	}
	report.Summary = summarize(day, opening, rows)
	return report
}

func summarize(day time.Time, opening types.Money, rows []Row) *Summary {
	s := &Summary{
		Day:           day,
		Achats:        types.Zero(),
		Depenses:      types.Zero(),
		Encaissements: types.Zero(),
		Recouvrements: types.Zero(),
		Entrees:       types.Zero(),
		Sorties:       types.Zero(),
		Opening:       opening,
	}

	// Opening of the day is the running balance before its first row.
	seen := false
	for _, r := range rows {
		if r.Date.Before(day) {
			s.Opening = r.Running
			continue
		}
		if !r.Date.Equal(day) {
			break
		}
		seen = true
		switch r.Kind {
		case KindEntree:
			s.Entrees = s.Entrees.Add(r.Montant)
		case KindSortie:
			s.Sorties = s.Sorties.Add(r.Montant)
		case KindAchat:
			s.Achats = s.Achats.Add(r.Montant)
		case KindDepense:
			s.Depenses = s.Depenses.Add(r.Montant)
		case KindPaiement:
			if r.MovementDate != nil && r.MovementDate.Before(day) {
				s.Recouvrements = s.Recouvrements.Add(r.Montant)
			} else {
				s.Encaissements = s.Encaissements.Add(r.Montant)
			}
		}
		s.Closing = r.Running
	}
	if !seen {
		s.Closing = s.Opening
	}
	return s
}
