package ledger

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
)

// Entity names a replicated table.
type Entity string

const (
	EntityOwner       Entity = "owner"
	EntityDesignation Entity = "designation"
	EntityClient      Entity = "client"
	EntityMovement    Entity = "movement"
	EntityPayment     Entity = "payment"
)

// Op is what happened to a row.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Change identifies one committed row mutation.
type Change struct {
	Entity Entity `json:"entity"`
	ID     string `json:"id"`
	Op     Op     `json:"op"`
}

// Notifier receives committed changes after the transaction ends.
// Implementations must not report failures back to the ledger caller.
type Notifier interface {
	Notify(ctx context.Context, scope tenant.Scope, changes []Change, wait bool)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, tenant.Scope, []Change, bool) {}

// Option tunes a single mutation.
type Option func(*options)

type options struct {
	waitReplication bool
}

// WaitReplication blocks until the mirror has processed the mutation's changes.
func WaitReplication() Option {
	return func(o *options) { o.waitReplication = true }
}

func collectOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// changeSet accumulates changes in insertion order without duplicates.
type changeSet struct {
	items []Change
	seen  map[Change]struct{}
}

func (c *changeSet) add(e Entity, key string, op Op) {
	if c.seen == nil {
		c.seen = make(map[Change]struct{})
	}
	ch := Change{Entity: e, ID: key, Op: op}
	if _, ok := c.seen[ch]; ok {
		return
	}
	c.seen[ch] = struct{}{}
	c.items = append(c.items, ch)
}

func (c *changeSet) upsert(e Entity, v id.ID) { c.add(e, v.String(), OpUpsert) }

func (c *changeSet) remove(e Entity, v id.ID) { c.add(e, v.String(), OpDelete) }

func (c *changeSet) movements(rows []Movement) {
	for _, r := range rows {
		c.upsert(EntityMovement, r.ID)
	}
}
