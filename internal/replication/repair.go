package replication

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// repairOrder lists tables parents first so resubmitted rows find their references.
var repairOrder = []ledger.Entity{
	ledger.EntityOwner,
	ledger.EntityDesignation,
	ledger.EntityClient,
	ledger.EntityMovement,
	ledger.EntityPayment,
}

// TableRepair reports one table of a repair run.
type TableRepair struct {
	Entity   ledger.Entity `json:"entity"`
	Local    int           `json:"local"`
	Mirror   int           `json:"mirror"`
	Missing  int           `json:"missing"`
	Extra    int           `json:"extra"`
	Retried  int           `json:"retried"`
	Repaired int           `json:"repaired"`
	Failed   int           `json:"failed"`
}

// RepairReport summarizes Repair.
type RepairReport struct {
	Scope  string        `json:"scope"`
	Tables []TableRepair `json:"tables"`
}

// Failed returns the number of rows that could not be converged.
func (r *RepairReport) Failed() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Failed
	}
	return n
}

type keyDiff struct {
	local, mirror  int
	missing, extra []string
}

// Repair diffs primary and mirror key sets of a scope and converges every
// row present on only one side. It then replays rows of the scope whose
// earlier replication failed, since their mirror copy may be stale even when
// both sides hold the key. Rows are applied synchronously, bypassing the queue.
func (m *Mirror) Repair(ctx context.Context, scope tenant.Scope) (*RepairReport, error) {
	diffs := make([]keyDiff, len(repairOrder))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range repairOrder {
		g.Go(func() error {
			var local, remote []string
			err := m.call(gctx, func(ctx context.Context) error {
				var err error
				local, err = m.src.Keys(ctx, scope.Key(), e)
				return err
			})
			if err != nil {
				return fmt.Errorf("list primary %s keys: %w", e, err)
			}
			err = m.call(gctx, func(ctx context.Context) error {
				var err error
				remote, err = m.dst.Keys(ctx, scope.Key(), e)
				return err
			})
			if err != nil {
				return fmt.Errorf("list mirror %s keys: %w", e, err)
			}
			diffs[i] = diffKeys(local, remote)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &RepairReport{Scope: scope.Key(), Tables: make([]TableRepair, len(repairOrder))}
	for i, e := range repairOrder {
		d := diffs[i]
		report.Tables[i] = TableRepair{
			Entity:  e,
			Local:   d.local,
			Mirror:  d.mirror,
			Missing: len(d.missing),
			Extra:   len(d.extra),
		}
	}

	// Missing rows parents first, extra rows children first.
	for i := range repairOrder {
		m.resubmit(ctx, scope, &report.Tables[i], diffs[i].missing)
	}
	for i := len(repairOrder) - 1; i >= 0; i-- {
		m.resubmit(ctx, scope, &report.Tables[i], diffs[i].extra)
	}

	// Failed rows whose key the diff did not already cover, parents first.
	failed := m.retry.snapshot(scope.Key())
	for i, e := range repairOrder {
		covered := make(map[string]struct{}, len(diffs[i].missing)+len(diffs[i].extra))
		for _, k := range diffs[i].missing {
			covered[k] = struct{}{}
		}
		for _, k := range diffs[i].extra {
			covered[k] = struct{}{}
		}
		var replay []string
		for _, k := range failed[e] {
			if _, ok := covered[k]; !ok {
				replay = append(replay, k)
			}
		}
		report.Tables[i].Retried = len(replay)
		m.resubmit(ctx, scope, &report.Tables[i], replay)
	}

	logger.Info(ctx, "mirror repair finished",
		"scope", scope.Key(),
		"failed", report.Failed(),
		"backlog", m.retry.size(scope.Key()),
	)
	return report, nil
}

func (m *Mirror) resubmit(ctx context.Context, scope tenant.Scope, tr *TableRepair, keys []string) {
	for _, key := range keys {
		t := Task{Scope: scope, Entity: tr.Entity, ID: key, Op: ledger.OpUpsert}
		if err := m.Apply(ctx, t); err != nil {
			m.fail(ctx, "repair", t, err)
			tr.Failed++
			continue
		}
		m.retry.done(scope.Key(), tr.Entity, key)
		tr.Repaired++
	}
}

// diffKeys returns keys only in local (missing on the mirror) and only in remote (extra).
func diffKeys(local, remote []string) keyDiff {
	inRemote := make(map[string]struct{}, len(remote))
	for _, k := range remote {
		inRemote[k] = struct{}{}
	}
	inLocal := make(map[string]struct{}, len(local))
	d := keyDiff{local: len(local), mirror: len(remote)}
	for _, k := range local {
		inLocal[k] = struct{}{}
		if _, ok := inRemote[k]; !ok {
			d.missing = append(d.missing, k)
		}
	}
	for _, k := range remote {
		if _, ok := inLocal[k]; !ok {
			d.extra = append(d.extra, k)
		}
	}
	sort.Strings(d.missing)
	sort.Strings(d.extra)
	return d
}
