package replication

import (
	"context"
	"errors"
	"sync"

	"stockledger/internal/domain/ledger"
)

// memTables holds one copy of every replicated table.
type memTables struct {
	mu           sync.Mutex
	owners       map[string]ledger.Owner
	designations map[string]ledger.Designation
	clients      map[string]ledger.Client
	movements    map[string]ledger.Movement
	payments     map[string]ledger.Payment

	// err fails every call when set.
	err error
	// writes counts upserts and deletes.
	writes int
}

func newMemTables() *memTables {
	return &memTables{
		owners:       make(map[string]ledger.Owner),
		designations: make(map[string]ledger.Designation),
		clients:      make(map[string]ledger.Client),
		movements:    make(map[string]ledger.Movement),
		payments:     make(map[string]ledger.Payment),
	}
}

func getRow[T any](t *memTables, m map[string]T, key string) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func putRow[T any](t *memTables, m map[string]T, key string, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	m[key] = v
	t.writes++
	return nil
}

// Source

func (t *memTables) Owner(_ context.Context, key string) (*ledger.Owner, error) {
	return getRow(t, t.owners, key)
}

func (t *memTables) Designation(_ context.Context, key string) (*ledger.Designation, error) {
	return getRow(t, t.designations, key)
}

func (t *memTables) Client(_ context.Context, key string) (*ledger.Client, error) {
	return getRow(t, t.clients, key)
}

func (t *memTables) Movement(_ context.Context, key string) (*ledger.Movement, error) {
	return getRow(t, t.movements, key)
}

func (t *memTables) Payment(_ context.Context, key string) (*ledger.Payment, error) {
	return getRow(t, t.payments, key)
}

func (t *memTables) Keys(_ context.Context, scopeKey string, e ledger.Entity) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	var out []string
	switch e {
	case ledger.EntityOwner:
		for k, v := range t.owners {
			if v.ScopeKey == scopeKey {
				out = append(out, k)
			}
		}
	case ledger.EntityDesignation:
		for k, v := range t.designations {
			if v.ScopeKey == scopeKey {
				out = append(out, k)
			}
		}
	case ledger.EntityClient:
		for k, v := range t.clients {
			if v.ScopeKey == scopeKey {
				out = append(out, k)
			}
		}
	case ledger.EntityMovement:
		for k, v := range t.movements {
			if v.ScopeKey == scopeKey {
				out = append(out, k)
			}
		}
	case ledger.EntityPayment:
		for k, v := range t.payments {
			if v.ScopeKey == scopeKey {
				out = append(out, k)
			}
		}
	}
	return out, nil
}

// Target

func (t *memTables) UpsertOwner(_ context.Context, o *ledger.Owner) error {
	return putRow(t, t.owners, o.ID, *o)
}

func (t *memTables) UpsertDesignation(_ context.Context, d *ledger.Designation) error {
	if err := t.requireParent(t.owners, d.OwnerID); err != nil {
		return err
	}
	return putRow(t, t.designations, d.ID.String(), *d)
}

func (t *memTables) UpsertClient(_ context.Context, c *ledger.Client) error {
	if err := t.requireParent(t.owners, c.OwnerID); err != nil {
		return err
	}
	return putRow(t, t.clients, c.ID.String(), *c)
}

func (t *memTables) UpsertMovement(_ context.Context, m *ledger.Movement) error {
	if err := t.requireParent(t.owners, m.OwnerID); err != nil {
		return err
	}
	if err := t.requireParent(t.designations, m.DesignationID.String()); err != nil {
		return err
	}
	if err := t.requireParent(t.clients, m.ClientID.String()); err != nil {
		return err
	}
	return putRow(t, t.movements, m.ID.String(), *m)
}

func (t *memTables) UpsertPayment(_ context.Context, p *ledger.Payment) error {
	if err := t.requireParent(t.owners, p.OwnerID); err != nil {
		return err
	}
	if err := t.requireParent(t.movements, p.MovementID.String()); err != nil {
		return err
	}
	return putRow(t, t.payments, p.ID.String(), *p)
}

var errForeignKey = errors.New("foreign key violation")

func (t *memTables) requireParent(m any, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ok bool
	switch parents := m.(type) {
	case map[string]ledger.Owner:
		_, ok = parents[key]
	case map[string]ledger.Designation:
		_, ok = parents[key]
	case map[string]ledger.Client:
		_, ok = parents[key]
	case map[string]ledger.Movement:
		_, ok = parents[key]
	}
	if !ok {
		return errForeignKey
	}
	return nil
}

func (t *memTables) Delete(_ context.Context, e ledger.Entity, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	switch e {
	case ledger.EntityOwner:
		delete(t.owners, key)
	case ledger.EntityDesignation:
		delete(t.designations, key)
	case ledger.EntityClient:
		delete(t.clients, key)
	case ledger.EntityMovement:
		delete(t.movements, key)
		for k, p := range t.payments {
			if p.MovementID.String() == key {
				delete(t.payments, k)
			}
		}
	case ledger.EntityPayment:
		delete(t.payments, key)
	}
	t.writes++
	return nil
}

func (t *memTables) Has(_ context.Context, e ledger.Entity, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return false, t.err
	}
	var ok bool
	switch e {
	case ledger.EntityOwner:
		_, ok = t.owners[key]
	case ledger.EntityDesignation:
		_, ok = t.designations[key]
	case ledger.EntityClient:
		_, ok = t.clients[key]
	case ledger.EntityMovement:
		_, ok = t.movements[key]
	case ledger.EntityPayment:
		_, ok = t.payments[key]
	}
	return ok, nil
}
