package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

var scope = tenant.Scope{UserID: "user-1"}

type fixture struct {
	primary *memTables
	mirror  *memTables
	m       *Mirror

	designation ledger.Designation
	client      ledger.Client
	movement    ledger.Movement
	payment     ledger.Payment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{primary: newMemTables(), mirror: newMemTables()}
	f.m = New(f.primary, f.mirror, Config{Workers: 2, QueueSize: 16, Timeout: time.Second, DiagnosticsSize: 8}, logger.Nop())
	t.Cleanup(f.m.Close)

	key := scope.Key()
	f.primary.owners[scope.UserID] = ledger.Owner{ID: scope.UserID, ScopeKey: key}
	f.designation = ledger.Designation{ID: id.New(), ScopeKey: key, OwnerID: scope.UserID, Name: "Riz", CurrentStock: 100}
	f.client = ledger.Client{ID: id.New(), ScopeKey: key, OwnerID: scope.UserID, Name: "Fatou"}
	f.movement = ledger.Movement{
		ID: id.New(), ScopeKey: key, OwnerID: scope.UserID,
		DesignationID: f.designation.ID, ClientID: f.client.ID,
		Type: ledger.Entree, Quantite: 100, Prix: 10, Montant: 1000, StockAfter: 100,
	}
	f.payment = ledger.Payment{ID: id.New(), ScopeKey: key, OwnerID: scope.UserID, MovementID: f.movement.ID, Montant: types.MustMoney("200")}

	f.primary.designations[f.designation.ID.String()] = f.designation
	f.primary.clients[f.client.ID.String()] = f.client
	f.primary.movements[f.movement.ID.String()] = f.movement
	f.primary.payments[f.payment.ID.String()] = f.payment
	return f
}

func TestMirror_PaymentMaterializesParents(t *testing.T) {
	f := newFixture(t)

	f.m.Notify(context.Background(), scope, []ledger.Change{
		{Entity: ledger.EntityPayment, ID: f.payment.ID.String(), Op: ledger.OpUpsert},
	}, true)

	assert.Contains(t, f.mirror.owners, scope.UserID)
	assert.Contains(t, f.mirror.designations, f.designation.ID.String())
	assert.Contains(t, f.mirror.clients, f.client.ID.String())
	assert.Contains(t, f.mirror.movements, f.movement.ID.String())
	assert.Contains(t, f.mirror.payments, f.payment.ID.String())
	assert.Zero(t, f.m.Diagnostics().Len())
}

func TestMirror_PaymentByColleagueMaterializesPayer(t *testing.T) {
	f := newFixture(t)
	key := scope.Key()
	f.primary.owners["user-2"] = ledger.Owner{ID: "user-2", ScopeKey: key}
	p := ledger.Payment{ID: id.New(), ScopeKey: key, OwnerID: "user-2", MovementID: f.movement.ID, Montant: types.MustMoney("50")}
	f.primary.payments[p.ID.String()] = p

	f.m.Notify(context.Background(), scope, []ledger.Change{
		{Entity: ledger.EntityPayment, ID: p.ID.String(), Op: ledger.OpUpsert},
	}, true)

	assert.Contains(t, f.mirror.owners, "user-2")
	assert.Contains(t, f.mirror.payments, p.ID.String())
	assert.Zero(t, f.m.Diagnostics().Len())
}

func TestMirror_UpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := Task{Scope: scope, Entity: ledger.EntityMovement, ID: f.movement.ID.String(), Op: ledger.OpUpsert}

	require.NoError(t, f.m.Apply(ctx, task))
	once := snapshot(f.mirror)

	require.NoError(t, f.m.Apply(ctx, task))
	assert.Equal(t, once, snapshot(f.mirror))
}

func TestMirror_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.movement.ID.String()
	task := Task{Scope: scope, Entity: ledger.EntityMovement, ID: key, Op: ledger.OpUpsert}

	// Two writers each commit a different quantite and replicate; the mirror keeps the last applied.
	var wg sync.WaitGroup
	var order sync.Mutex
	for _, q := range []int64{40, 70} {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			order.Lock()
			defer order.Unlock()
			mv := f.movement
			mv.Quantite = q
			f.primary.mu.Lock()
			f.primary.movements[key] = mv
			f.primary.mu.Unlock()
			assert.NoError(t, f.m.Apply(ctx, task))
		}(q)
	}
	wg.Wait()

	primary, _ := f.primary.Movement(ctx, key)
	mirrored, _ := f.mirror.Movement(ctx, key)
	require.NotNil(t, mirrored)
	assert.Equal(t, primary.Quantite, mirrored.Quantite)
}

func TestMirror_MissingPrimaryRowDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.movement.ID.String()

	require.NoError(t, f.m.Apply(ctx, Task{Entity: ledger.EntityPayment, ID: f.payment.ID.String()}))
	require.Contains(t, f.mirror.movements, key)

	delete(f.primary.movements, key)
	delete(f.primary.payments, f.payment.ID.String())

	// Replayed or reordered tasks converge to the primary's state.
	require.NoError(t, f.m.Apply(ctx, Task{Entity: ledger.EntityMovement, ID: key, Op: ledger.OpUpsert}))
	require.NoError(t, f.m.Apply(ctx, Task{Entity: ledger.EntityMovement, ID: key, Op: ledger.OpDelete}))
	assert.NotContains(t, f.mirror.movements, key)
	assert.Empty(t, f.mirror.payments)
}

func TestMirror_FailuresGoToDiagnostics(t *testing.T) {
	f := newFixture(t)
	f.mirror.err = errors.New("mirror unreachable")

	f.m.Notify(context.Background(), scope, []ledger.Change{
		{Entity: ledger.EntityDesignation, ID: f.designation.ID.String(), Op: ledger.OpUpsert},
		{Entity: ledger.EntityClient, ID: f.client.ID.String(), Op: ledger.OpUpsert},
	}, true)

	entries := f.m.Diagnostics().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "apply", entries[0].Tag)
	assert.Equal(t, scope.Key(), entries[0].Scope)
	assert.Equal(t, string(ledger.EntityDesignation), entries[0].Entity)
	assert.Contains(t, entries[0].Cause, "mirror unreachable")
}

func TestMirror_FireAndForgetEventuallyApplies(t *testing.T) {
	f := newFixture(t)

	f.m.Notify(context.Background(), scope, []ledger.Change{
		{Entity: ledger.EntityMovement, ID: f.movement.ID.String(), Op: ledger.OpUpsert},
	}, false)
	f.m.Close() // drains

	_, ok := f.mirror.movements[f.movement.ID.String()]
	assert.True(t, ok)
}

func TestMirror_Repair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A stale row on the mirror that the primary no longer has.
	stale := f.movement
	stale.ID = id.New()
	f.mirror.owners[scope.UserID] = ledger.Owner{ID: scope.UserID, ScopeKey: scope.Key()}
	f.mirror.designations[f.designation.ID.String()] = f.designation
	f.mirror.clients[f.client.ID.String()] = f.client
	f.mirror.movements[stale.ID.String()] = stale

	report, err := f.m.Repair(ctx, scope)
	require.NoError(t, err)
	assert.Zero(t, report.Failed())

	byEntity := map[ledger.Entity]TableRepair{}
	for _, tr := range report.Tables {
		byEntity[tr.Entity] = tr
	}
	assert.Equal(t, 1, byEntity[ledger.EntityMovement].Missing)
	assert.Equal(t, 1, byEntity[ledger.EntityMovement].Extra)
	assert.Equal(t, 2, byEntity[ledger.EntityMovement].Repaired)
	assert.Equal(t, 1, byEntity[ledger.EntityPayment].Missing)
	assert.Equal(t, 0, byEntity[ledger.EntityDesignation].Missing)

	assert.Equal(t, snapshot(f.primary), snapshot(f.mirror))

	// A second run finds nothing to do.
	report, err = f.m.Repair(ctx, scope)
	require.NoError(t, err)
	for _, tr := range report.Tables {
		assert.Zero(t, tr.Missing+tr.Extra, tr.Entity)
	}
}

func TestMirror_RepairReplaysDroppedUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.movement.ID.String()
	require.NoError(t, f.m.Apply(ctx, Task{Scope: scope, Entity: ledger.EntityPayment, ID: f.payment.ID.String()}))

	// The update commits on the primary but its task never reaches a worker.
	f.m.Close()
	updated := f.movement
	updated.Quantite, updated.Montant = 40, 400
	f.primary.movements[key] = updated
	other := tenant.Scope{UserID: "user-2"}
	f.m.Notify(ctx, scope, []ledger.Change{{Entity: ledger.EntityMovement, ID: key, Op: ledger.OpUpsert}}, false)
	f.m.Notify(ctx, other, []ledger.Change{{Entity: ledger.EntityClient, ID: "elsewhere", Op: ledger.OpUpsert}}, false)
	require.Equal(t, int64(100), f.mirror.movements[key].Quantite)

	report, err := f.m.Repair(ctx, scope)
	require.NoError(t, err)
	assert.Zero(t, report.Failed())

	byEntity := map[ledger.Entity]TableRepair{}
	for _, tr := range report.Tables {
		byEntity[tr.Entity] = tr
		assert.Zero(t, tr.Missing+tr.Extra, tr.Entity)
	}
	assert.Equal(t, 1, byEntity[ledger.EntityMovement].Retried)
	assert.Zero(t, byEntity[ledger.EntityClient].Retried)
	assert.Equal(t, snapshot(f.primary), snapshot(f.mirror))

	// Converged rows leave the backlog; the other scope keeps its own.
	report, err = f.m.Repair(ctx, scope)
	require.NoError(t, err)
	for _, tr := range report.Tables {
		assert.Zero(t, tr.Retried, tr.Entity)
	}
	assert.Equal(t, 1, f.m.retry.size(other.Key()))
}

func TestMirror_RepairFailsWhenKeysUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mirror.err = errors.New("down")

	_, err := f.m.Repair(context.Background(), scope)
	assert.Error(t, err)
}

type tablesSnapshot struct {
	owners       map[string]ledger.Owner
	designations map[string]ledger.Designation
	clients      map[string]ledger.Client
	movements    map[string]ledger.Movement
	payments     map[string]ledger.Payment
}

func snapshot(t *memTables) tablesSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := tablesSnapshot{
		owners:       map[string]ledger.Owner{},
		designations: map[string]ledger.Designation{},
		clients:      map[string]ledger.Client{},
		movements:    map[string]ledger.Movement{},
		payments:     map[string]ledger.Payment{},
	}
	for k, v := range t.owners {
		s.owners[k] = v
	}
	for k, v := range t.designations {
		s.designations[k] = v
	}
	for k, v := range t.clients {
		s.clients[k] = v
	}
	for k, v := range t.movements {
		s.movements[k] = v
	}
	for k, v := range t.payments {
		s.payments[k] = v
	}
	return s
}
