package replication

import (
	"sort"
	"sync"

	"stockledger/internal/domain/ledger"
)

type rowRef struct {
	Entity ledger.Entity
	ID     string
}

// backlog remembers, per scope, rows whose replication failed. A row leaves
// the backlog once a later apply of it succeeds. Rows whose key exists on both
// sides may still hold stale content on the mirror, so Repair replays them.
type backlog struct {
	mu   sync.Mutex
	rows map[string]map[rowRef]struct{}
}

func newBacklog() *backlog {
	return &backlog{rows: make(map[string]map[rowRef]struct{})}
}

func (b *backlog) add(scopeKey string, e ledger.Entity, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.rows[scopeKey]
	if !ok {
		set = make(map[rowRef]struct{})
		b.rows[scopeKey] = set
	}
	set[rowRef{Entity: e, ID: id}] = struct{}{}
}

func (b *backlog) done(scopeKey string, e ledger.Entity, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.rows[scopeKey]
	if !ok {
		return
	}
	delete(set, rowRef{Entity: e, ID: id})
	if len(set) == 0 {
		delete(b.rows, scopeKey)
	}
}

// snapshot returns a scope's rows grouped by entity, ids sorted.
func (b *backlog) snapshot(scopeKey string) map[ledger.Entity][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[ledger.Entity][]string)
	for r := range b.rows[scopeKey] {
		out[r.Entity] = append(out[r.Entity], r.ID)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

func (b *backlog) size(scopeKey string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows[scopeKey])
}
