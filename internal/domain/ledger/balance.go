package ledger

import (
	"context"
	"fmt"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/pkg/logger"
)

// Maintainer keeps stock and stock_after consistent along a designation's chain.
// Callers must hold the designation locks and run inside one transaction.
type Maintainer struct {
	repo Repository
}

// NewMaintainer creates a balance maintainer over repo.
func NewMaintainer(repo Repository) *Maintainer {
	return &Maintainer{repo: repo}
}

// Outcome reports what a chain mutation changed.
type Outcome struct {
	// Adjusted holds every other movement whose stored balances moved, in final state.
	Adjusted []Movement
	// Stock is the new current_stock per touched designation.
	Stock map[id.ID]int64
}

// adjustments tracks the final state of rows shifted by one or more range updates.
type adjustments struct {
	rows  map[id.ID]Movement
	order []id.ID
}

func newAdjustments() *adjustments {
	return &adjustments{rows: make(map[id.ID]Movement)}
}

func (a *adjustments) add(rows []Movement) {
	for _, r := range rows {
		if _, ok := a.rows[r.ID]; !ok {
			a.order = append(a.order, r.ID)
		}
		a.rows[r.ID] = r
	}
}

func (a *adjustments) list() []Movement {
	out := make([]Movement, 0, len(a.order))
	for _, k := range a.order {
		out = append(out, a.rows[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DesignationID != out[j].DesignationID {
			return id.Compare(out[i].DesignationID, out[j].DesignationID) < 0
		}
		return out[i].Position().Before(out[j].Position())
	})
	return out
}

// Create appends m to d's chain and persists it.
// When m sorts after the last movement the balance is taken from current_stock;
// a back-dated movement gets a fresh prefix-sum base and shifts the tail.
func (mt *Maintainer) Create(ctx context.Context, d *Designation, m *Movement) (*Outcome, error) {
	last, err := mt.repo.LastPosition(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("last position: %w", err)
	}

	delta := m.Delta()
	adj := newAdjustments()

	if last == nil || last.Before(m.Position()) {
		m.Stock = d.CurrentStock
		m.StockAfter = m.Stock + delta
		if err := checkBalance(*m); err != nil {
			return nil, err
		}
		if err := mt.repo.InsertMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("insert movement: %w", err)
		}
	} else {
		base, err := mt.repo.SumBefore(ctx, d.ID, m.Position(), m.ID)
		if err != nil {
			return nil, fmt.Errorf("sum before: %w", err)
		}
		m.Stock = base
		m.StockAfter = base + delta
		if err := checkBalance(*m); err != nil {
			return nil, err
		}
		if err := mt.repo.InsertMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("insert movement: %w", err)
		}
		tail, err := mt.repo.ShiftAfter(ctx, d.ID, m.Position(), delta)
		if err != nil {
			return nil, fmt.Errorf("shift tail: %w", err)
		}
		adj.add(tail)
		logger.Debug(ctx, "back-dated movement shifted tail",
			"designation_id", d.ID, "movement_id", m.ID, "tail", len(tail))
	}

	stock, err := mt.repo.AdjustCurrentStock(ctx, d.ID, delta)
	if err != nil {
		return nil, fmt.Errorf("adjust current stock: %w", err)
	}

	adjusted := adj.list()
	if err := checkBalance(adjusted...); err != nil {
		return nil, err
	}
	return &Outcome{Adjusted: adjusted, Stock: map[id.ID]int64{d.ID: stock}}, nil
}

// Edit moves old to the state described by next.
// The old delta is removed from the old tail before the new base is computed
// and the new delta re-applied; the two range updates are never merged.
func (mt *Maintainer) Edit(ctx context.Context, old Movement, next *Movement) (*Outcome, error) {
	adj := newAdjustments()
	oldDelta, newDelta := old.Delta(), next.Delta()

	// Un-apply on the old chain.
	tail, err := mt.repo.ShiftAfter(ctx, old.DesignationID, old.Position(), -oldDelta)
	if err != nil {
		return nil, fmt.Errorf("un-apply old tail: %w", err)
	}
	adj.add(tail)

	// Fresh base on the target chain.
	base, err := mt.repo.SumBefore(ctx, next.DesignationID, next.Position(), next.ID)
	if err != nil {
		return nil, fmt.Errorf("sum before: %w", err)
	}
	next.Stock = base
	next.StockAfter = base + newDelta

	if err := mt.repo.UpdateMovement(ctx, next); err != nil {
		return nil, fmt.Errorf("update movement: %w", err)
	}

	// Re-apply on the target chain.
	tail, err = mt.repo.ShiftAfter(ctx, next.DesignationID, next.Position(), newDelta)
	if err != nil {
		return nil, fmt.Errorf("re-apply new tail: %w", err)
	}
	adj.add(tail)

	stock := make(map[id.ID]int64, 2)
	if old.DesignationID == next.DesignationID {
		v, err := mt.repo.AdjustCurrentStock(ctx, next.DesignationID, newDelta-oldDelta)
		if err != nil {
			return nil, fmt.Errorf("adjust current stock: %w", err)
		}
		stock[next.DesignationID] = v
	} else {
		v, err := mt.repo.AdjustCurrentStock(ctx, old.DesignationID, -oldDelta)
		if err != nil {
			return nil, fmt.Errorf("adjust old current stock: %w", err)
		}
		stock[old.DesignationID] = v
		if v, err = mt.repo.AdjustCurrentStock(ctx, next.DesignationID, newDelta); err != nil {
			return nil, fmt.Errorf("adjust target current stock: %w", err)
		}
		stock[next.DesignationID] = v
	}

	adjusted := adj.list()
	if err := checkBalance(append([]Movement{*next}, adjusted...)...); err != nil {
		return nil, err
	}
	return &Outcome{Adjusted: adjusted, Stock: stock}, nil
}

// Delete removes m from its chain and un-applies its delta from the tail.
func (mt *Maintainer) Delete(ctx context.Context, m Movement) (*Outcome, error) {
	delta := m.Delta()

	tail, err := mt.repo.ShiftAfter(ctx, m.DesignationID, m.Position(), -delta)
	if err != nil {
		return nil, fmt.Errorf("un-apply tail: %w", err)
	}
	if err := mt.repo.DeleteMovement(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("delete movement: %w", err)
	}
	stock, err := mt.repo.AdjustCurrentStock(ctx, m.DesignationID, -delta)
	if err != nil {
		return nil, fmt.Errorf("adjust current stock: %w", err)
	}

	if err := checkBalance(tail...); err != nil {
		return nil, err
	}
	return &Outcome{Adjusted: tail, Stock: map[id.ID]int64{m.DesignationID: stock}}, nil
}

// RebuildReport describes a full chain recomputation.
type RebuildReport struct {
	DesignationID id.ID `json:"designationId"`
	Movements     int   `json:"movements"`
	Repaired      int   `json:"repaired"`
	PreviousStock int64 `json:"previousStock"`
	CurrentStock  int64 `json:"currentStock"`
	// Repaired rows in their corrected state.
	Rows []Movement `json:"-"`
}

// Rebuild recomputes every stored balance of d's chain from zero and resets current_stock.
// Negative balances are reported but left in place so the data can be inspected.
func (mt *Maintainer) Rebuild(ctx context.Context, scope tenant.Scope, d *Designation) (*RebuildReport, error) {
	chain, err := mt.repo.ListChain(ctx, scope, d.ID)
	if err != nil {
		return nil, fmt.Errorf("list chain: %w", err)
	}

	report := &RebuildReport{DesignationID: d.ID, Movements: len(chain), PreviousStock: d.CurrentStock}
	var running int64
	for i := range chain {
		m := chain[i]
		stock, after := running, running+m.Delta()
		running = after
		if m.Stock == stock && m.StockAfter == after {
			continue
		}
		m.Stock, m.StockAfter = stock, after
		report.Rows = append(report.Rows, m)
	}
	report.Repaired = len(report.Rows)
	if report.Repaired > 0 {
		if err := mt.repo.RestateBalances(ctx, report.Rows); err != nil {
			return nil, err
		}
	}

	if running != d.CurrentStock {
		if err := mt.repo.SetCurrentStock(ctx, d.ID, running); err != nil {
			return nil, fmt.Errorf("set current stock: %w", err)
		}
	}
	report.CurrentStock = running

	if running < 0 {
		logger.Warn(ctx, "rebuilt chain ends below zero", "designation_id", d.ID, "stock", running)
	}
	return report, nil
}

// checkBalance fails on the earliest row whose balance after the movement is negative.
func checkBalance(rows ...Movement) error {
	var worst *Movement
	for i := range rows {
		r := &rows[i]
		if r.StockAfter >= 0 {
			continue
		}
		if worst == nil || r.Position().Before(worst.Position()) {
			worst = r
		}
	}
	if worst == nil {
		return nil
	}
	return apperror.NewInsufficientStock(worst.DesignationID.String(), worst.Quantite, worst.Stock).
		WithDetail("movement_id", worst.ID.String()).
		WithDetail("date", worst.Date.Format("2006-01-02"))
}
