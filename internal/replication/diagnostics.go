package replication

import (
	"sync"
	"time"
)

// Entry is one recorded replication failure.
type Entry struct {
	At     time.Time `json:"at"`
	Scope  string    `json:"scope"`
	Tag    string    `json:"tag"`
	Entity string    `json:"entity"`
	ID     string    `json:"id"`
	Cause  string    `json:"cause"`
}

// Diagnostics is a bounded ring of replication failures.
// When full, the oldest entry is overwritten.
type Diagnostics struct {
	mu     sync.Mutex
	buf    []Entry
	next   int
	full   bool
	total  uint64
	totals map[string]uint64 // per scope, retained beyond the ring
	now    func() time.Time
}

// NewDiagnostics creates a ring holding at most size entries.
func NewDiagnostics(size int) *Diagnostics {
	if size <= 0 {
		size = 1
	}
	return &Diagnostics{
		buf:    make([]Entry, size),
		totals: make(map[string]uint64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record stores a failure of a row belonging to scopeKey.
func (d *Diagnostics) Record(scopeKey, tag, entity, id string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf[d.next] = Entry{At: d.now(), Scope: scopeKey, Tag: tag, Entity: entity, ID: id, Cause: msg}
	d.next = (d.next + 1) % len(d.buf)
	if d.next == 0 {
		d.full = true
	}
	d.total++
	d.totals[scopeKey]++
}

// Entries returns the retained failures, oldest first.
func (d *Diagnostics) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.full {
		out := make([]Entry, d.next)
		copy(out, d.buf[:d.next])
		return out
	}
	out := make([]Entry, 0, len(d.buf))
	out = append(out, d.buf[d.next:]...)
	return append(out, d.buf[:d.next]...)
}

// EntriesFor returns the retained failures of one scope, oldest first.
func (d *Diagnostics) EntriesFor(scopeKey string) []Entry {
	all := d.Entries()
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.Scope == scopeKey {
			out = append(out, e)
		}
	}
	return out
}

// TotalFor returns how many failures were ever recorded for one scope.
func (d *Diagnostics) TotalFor(scopeKey string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals[scopeKey]
}

// Len returns the number of retained entries.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.full {
		return len(d.buf)
	}
	return d.next
}

// Total returns how many failures were ever recorded.
func (d *Diagnostics) Total() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Capacity returns the ring size.
func (d *Diagnostics) Capacity() int {
	return len(d.buf)
}
