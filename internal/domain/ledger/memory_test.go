package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
)

// memStore is an in-memory Repository and tx.Manager.
// One transaction runs at a time; a failed transaction restores the snapshot taken at its start.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	owners       map[string]Owner
	designations map[id.ID]Designation
	clients      map[id.ID]Client
	movements    map[id.ID]Movement
	payments     map[id.ID]Payment

	// failOn makes the named operation return an error, simulating a storage failure.
	failOn string
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		owners:       make(map[string]Owner),
		designations: make(map[id.ID]Designation),
		clients:      make(map[id.ID]Client),
		movements:    make(map[id.ID]Movement),
		payments:     make(map[id.ID]Payment),
	}
}

type memSnapshot struct {
	owners       map[string]Owner
	designations map[id.ID]Designation
	clients      map[id.ID]Client
	movements    map[id.ID]Movement
	payments     map[id.ID]Payment
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		owners:       cloneMap(s.owners),
		designations: cloneMap(s.designations),
		clients:      cloneMap(s.clients),
		movements:    cloneMap(s.movements),
		payments:     cloneMap(s.payments),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = snap.owners
	s.designations = snap.designations
	s.clients = snap.clients
	s.movements = snap.movements
	s.payments = snap.payments
}

func (s *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return apperror.NewStorage(errFake(op))
	}
	return nil
}

// requireOwner mirrors the owners(id) foreign key. Callers hold s.mu.
func (s *memStore) requireOwner(ownerID string) error {
	if _, ok := s.owners[ownerID]; !ok {
		return apperror.NewStorage(errFake("owner_id foreign key: " + ownerID))
	}
	return nil
}

type errFake string

func (e errFake) Error() string { return "fake failure in " + string(e) }

// --- Directory ---

func (s *memStore) EnsureOwner(_ context.Context, scope tenant.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[scope.UserID]; !ok {
		s.owners[scope.UserID] = Owner{ID: scope.UserID, ScopeKey: scope.Key(), CompanyCode: scope.CompanyCode}
	}
	return nil
}

func (s *memStore) FindOrCreateDesignation(_ context.Context, scope tenant.Scope, name string) (*Designation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.designations {
		if d.ScopeKey == scope.Key() && strings.EqualFold(d.Name, name) {
			return &d, false, nil
		}
	}
	d := Designation{ID: id.New(), ScopeKey: scope.Key(), OwnerID: scope.UserID, Name: name}
	if err := s.requireOwner(d.OwnerID); err != nil {
		return nil, false, err
	}
	s.designations[d.ID] = d
	return &d, true, nil
}

func (s *memStore) GetDesignation(_ context.Context, scope tenant.Scope, designationID id.ID) (*Designation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.designations[designationID]
	if !ok || d.ScopeKey != scope.Key() {
		return nil, apperror.NewNotFound("designation", designationID.String())
	}
	return &d, nil
}

func (s *memStore) LockDesignations(ctx context.Context, scope tenant.Scope, ids []id.ID) (map[id.ID]*Designation, error) {
	out := make(map[id.ID]*Designation, len(ids))
	for _, v := range ids {
		d, err := s.GetDesignation(ctx, scope, v)
		if err != nil {
			return nil, err
		}
		out[v] = d
	}
	return out, nil
}

func (s *memStore) AdjustCurrentStock(_ context.Context, designationID id.ID, delta int64) (int64, error) {
	if err := s.fail("AdjustCurrentStock"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.designations[designationID]
	d.CurrentStock += delta
	s.designations[designationID] = d
	return d.CurrentStock, nil
}

func (s *memStore) SetCurrentStock(_ context.Context, designationID id.ID, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.designations[designationID]
	d.CurrentStock = value
	s.designations[designationID] = d
	return nil
}

func (s *memStore) FindOrCreateClient(_ context.Context, scope tenant.Scope, name string) (*Client, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ScopeKey == scope.Key() && strings.EqualFold(c.Name, name) {
			return &c, false, nil
		}
	}
	c := Client{ID: id.New(), ScopeKey: scope.Key(), OwnerID: scope.UserID, Name: name}
	if err := s.requireOwner(c.OwnerID); err != nil {
		return nil, false, err
	}
	s.clients[c.ID] = c
	return &c, true, nil
}

func (s *memStore) GetClient(_ context.Context, scope tenant.Scope, clientID id.ID) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok || c.ScopeKey != scope.Key() {
		return nil, apperror.NewNotFound("client", clientID.String())
	}
	return &c, nil
}

// --- Chain ---

func (s *memStore) GetMovement(_ context.Context, scope tenant.Scope, movementID id.ID, _ bool) (*Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[movementID]
	if !ok || m.ScopeKey != scope.Key() {
		return nil, apperror.NewNotFound("movement", movementID.String())
	}
	return &m, nil
}

func (s *memStore) InsertMovement(_ context.Context, m *Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOwner(m.OwnerID); err != nil {
		return err
	}
	s.movements[m.ID] = *m
	return nil
}

func (s *memStore) UpdateMovement(_ context.Context, m *Movement) error {
	if err := s.fail("UpdateMovement"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.ID] = *m
	return nil
}

func (s *memStore) RestateBalances(_ context.Context, rows []Movement) error {
	if err := s.fail("RestateBalances"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range rows {
		cur, ok := s.movements[m.ID]
		if !ok {
			return apperror.NewNotFound("movement", m.ID.String())
		}
		cur.Stock, cur.StockAfter = m.Stock, m.StockAfter
		s.movements[m.ID] = cur
	}
	return nil
}

func (s *memStore) DeleteMovement(_ context.Context, movementID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.movements, movementID)
	for k, p := range s.payments {
		if p.MovementID == movementID {
			delete(s.payments, k)
		}
	}
	return nil
}

func (s *memStore) chain(designationID id.ID) []Movement {
	var out []Movement
	for _, m := range s.movements {
		if m.DesignationID == designationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position().Before(out[j].Position()) })
	return out
}

func (s *memStore) LastPosition(_ context.Context, designationID id.ID) (*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.chain(designationID)
	if len(c) == 0 {
		return nil, nil
	}
	p := c[len(c)-1].Position()
	return &p, nil
}

func (s *memStore) SumBefore(_ context.Context, designationID id.ID, pos Position, exclude id.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, m := range s.chain(designationID) {
		if m.ID != exclude && m.Position().Before(pos) {
			sum += m.Delta()
		}
	}
	return sum, nil
}

func (s *memStore) ShiftAfter(_ context.Context, designationID id.ID, pos Position, delta int64) ([]Movement, error) {
	if err := s.fail("ShiftAfter"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Movement
	for _, m := range s.chain(designationID) {
		if pos.Before(m.Position()) {
			m.Stock += delta
			m.StockAfter += delta
			s.movements[m.ID] = m
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ListChain(_ context.Context, scope tenant.Scope, designationID id.ID) ([]Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Movement
	for _, m := range s.chain(designationID) {
		if m.ScopeKey == scope.Key() {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- Payments ---

func (s *memStore) SumPayments(_ context.Context, movementID id.ID, exclude id.ID) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := types.Zero()
	for _, p := range s.payments {
		if p.MovementID == movementID && p.ID != exclude {
			sum = sum.Add(p.Montant)
		}
	}
	return sum, nil
}

func (s *memStore) GetPayment(_ context.Context, scope tenant.Scope, paymentID id.ID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok || p.ScopeKey != scope.Key() {
		return nil, apperror.NewNotFound("payment", paymentID.String())
	}
	return &p, nil
}

func (s *memStore) ListPayments(_ context.Context, scope tenant.Scope, movementID id.ID) ([]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Payment
	for _, p := range s.payments {
		if p.MovementID == movementID && p.ScopeKey == scope.Key() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (s *memStore) InsertPayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOwner(p.OwnerID); err != nil {
		return err
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *memStore) UpdatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = *p
	return nil
}

func (s *memStore) DeletePayment(_ context.Context, paymentID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payments, paymentID)
	return nil
}

// --- Test helpers ---

// recordingNotifier captures published changes.
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]Change
	waits []bool
}

func (n *recordingNotifier) Notify(_ context.Context, _ tenant.Scope, changes []Change, wait bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, changes)
	n.waits = append(n.waits, wait)
}

func (n *recordingNotifier) last() []Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return nil
	}
	return n.calls[len(n.calls)-1]
}

// requireInvariants checks every chain of the store.
func requireInvariants(t *testing.T, s *memStore) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.designations {
		var sum int64
		chain := s.chain(d.ID)
		for i, m := range chain {
			sum += m.Delta()
			require.Equal(t, m.Delta(), m.StockAfter-m.Stock, "stockR - stock of %s", m.ID)
			if i == 0 {
				require.Equal(t, int64(0), m.Stock, "first movement of %s starts at zero", d.Name)
			} else {
				require.Equal(t, chain[i-1].StockAfter, m.Stock, "movement %s continues its predecessor", m.ID)
			}
		}
		require.Equal(t, sum, d.CurrentStock, "current_stock of %s", d.Name)
	}
	for _, m := range s.movements {
		paid := types.Zero()
		for _, p := range s.payments {
			if p.MovementID == m.ID {
				paid = paid.Add(p.Montant)
			}
		}
		require.False(t, types.ExceedsCeiling(paid, m.Total()), "payments of %s exceed montant", m.ID)
	}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
