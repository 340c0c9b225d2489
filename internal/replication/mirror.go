// Package replication copies committed ledger rows to a secondary store.
// Copies are idempotent upserts keyed by primary id. Each task re-reads the
// row from the primary right before writing, so the mirror converges to the
// latest committed state (last write wins) rather than replaying history.
package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/replication")

// Task asks the mirror to converge one row.
type Task struct {
	Scope  tenant.Scope
	Entity ledger.Entity
	ID     string
	Op     ledger.Op
}

// Source reads current rows from the primary store. Missing rows return nil, nil.
type Source interface {
	Owner(ctx context.Context, ownerID string) (*ledger.Owner, error)
	Designation(ctx context.Context, key string) (*ledger.Designation, error)
	Client(ctx context.Context, key string) (*ledger.Client, error)
	Movement(ctx context.Context, key string) (*ledger.Movement, error)
	Payment(ctx context.Context, key string) (*ledger.Payment, error)

	// Keys lists the primary keys of one table within a scope.
	Keys(ctx context.Context, scopeKey string, e ledger.Entity) ([]string, error)
}

// Target is the mirror store. Upserts insert or overwrite by primary id.
type Target interface {
	UpsertOwner(ctx context.Context, o *ledger.Owner) error
	UpsertDesignation(ctx context.Context, d *ledger.Designation) error
	UpsertClient(ctx context.Context, c *ledger.Client) error
	UpsertMovement(ctx context.Context, m *ledger.Movement) error
	UpsertPayment(ctx context.Context, p *ledger.Payment) error
	Delete(ctx context.Context, e ledger.Entity, key string) error
	Has(ctx context.Context, e ledger.Entity, key string) (bool, error)
	Keys(ctx context.Context, scopeKey string, e ledger.Entity) ([]string, error)
}

// Config tunes the mirror.
type Config struct {
	Workers         int
	QueueSize       int
	Timeout         time.Duration
	DiagnosticsSize int
}

// DefaultConfig returns settings suitable for a single server process.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       1024,
		Timeout:         5 * time.Second,
		DiagnosticsSize: 256,
	}
}

// Mirror propagates ledger changes to a Target. It implements ledger.Notifier.
type Mirror struct {
	src  Source
	dst  Target
	cfg  Config
	diag *Diagnostics
	disp *Dispatcher
	log  *logger.Logger

	retry *backlog
}

// New creates a mirror and starts its workers.
func New(src Source, dst Target, cfg Config, log *logger.Logger) *Mirror {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if log == nil {
		log = logger.Default()
	}
	m := &Mirror{
		src:   src,
		dst:   dst,
		cfg:   cfg,
		diag:  NewDiagnostics(cfg.DiagnosticsSize),
		log:   log.WithComponent("replication"),
		retry: newBacklog(),
	}
	m.disp = NewDispatcher(cfg.Workers, cfg.QueueSize, m.process)
	m.disp.Start()
	return m
}

// Diagnostics exposes recorded failures.
func (m *Mirror) Diagnostics() *Diagnostics {
	return m.diag
}

// Pending returns the number of queued tasks.
func (m *Mirror) Pending() int {
	return m.disp.Pending()
}

// Close drains queued tasks and stops the workers.
func (m *Mirror) Close() {
	m.disp.Close()
}

// Notify schedules committed changes. Failures only reach Diagnostics.
func (m *Mirror) Notify(ctx context.Context, scope tenant.Scope, changes []ledger.Change, wait bool) {
	for _, ch := range changes {
		t := Task{Scope: scope, Entity: ch.Entity, ID: ch.ID, Op: ch.Op}
		if wait {
			// Handler errors are recorded by process; only scheduling failures are left here.
			err := m.disp.SubmitAndWait(ctx, t)
			if errors.Is(err, ErrClosed) || (err != nil && ctx.Err() != nil) {
				m.fail(ctx, "wait", t, err)
			}
			continue
		}
		if err := m.disp.Submit(appctx.Detach(ctx), t); err != nil {
			m.fail(ctx, "enqueue", t, err)
		}
	}
}

// process is the worker handler: converge one row and record any failure.
func (m *Mirror) process(ctx context.Context, t Task) error {
	ctx, span := tracer.Start(ctx, "replicate",
		traceAttrs(t)...,
	)
	defer span.End()

	err := m.Apply(ctx, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.fail(ctx, "apply", t, err)
		return err
	}
	m.retry.done(t.Scope.Key(), t.Entity, t.ID)
	return nil
}

// Apply converges the mirror copy of one row with the primary.
func (m *Mirror) Apply(ctx context.Context, t Task) error {
	switch t.Entity {
	case ledger.EntityOwner:
		return m.syncOwner(ctx, t.ID)
	case ledger.EntityDesignation:
		return m.syncDesignation(ctx, t.ID)
	case ledger.EntityClient:
		return m.syncClient(ctx, t.ID)
	case ledger.EntityMovement:
		return m.syncMovement(ctx, t.ID)
	case ledger.EntityPayment:
		return m.syncPayment(ctx, t.ID)
	default:
		return fmt.Errorf("unknown entity %q", t.Entity)
	}
}

func (m *Mirror) syncOwner(ctx context.Context, key string) error {
	o, err := read(ctx, m, func(ctx context.Context) (*ledger.Owner, error) { return m.src.Owner(ctx, key) })
	if err != nil {
		return err
	}
	if o == nil {
		return m.remove(ctx, ledger.EntityOwner, key)
	}
	return m.call(ctx, func(ctx context.Context) error { return m.dst.UpsertOwner(ctx, o) })
}

func (m *Mirror) syncDesignation(ctx context.Context, key string) error {
	d, err := read(ctx, m, func(ctx context.Context) (*ledger.Designation, error) { return m.src.Designation(ctx, key) })
	if err != nil {
		return err
	}
	if d == nil {
		return m.remove(ctx, ledger.EntityDesignation, key)
	}
	if err := m.ensure(ctx, ledger.EntityOwner, d.OwnerID); err != nil {
		return err
	}
	return m.call(ctx, func(ctx context.Context) error { return m.dst.UpsertDesignation(ctx, d) })
}

func (m *Mirror) syncClient(ctx context.Context, key string) error {
	c, err := read(ctx, m, func(ctx context.Context) (*ledger.Client, error) { return m.src.Client(ctx, key) })
	if err != nil {
		return err
	}
	if c == nil {
		return m.remove(ctx, ledger.EntityClient, key)
	}
	if err := m.ensure(ctx, ledger.EntityOwner, c.OwnerID); err != nil {
		return err
	}
	return m.call(ctx, func(ctx context.Context) error { return m.dst.UpsertClient(ctx, c) })
}

func (m *Mirror) syncMovement(ctx context.Context, key string) error {
	mv, err := read(ctx, m, func(ctx context.Context) (*ledger.Movement, error) { return m.src.Movement(ctx, key) })
	if err != nil {
		return err
	}
	if mv == nil {
		return m.remove(ctx, ledger.EntityMovement, key)
	}
	if err := m.ensure(ctx, ledger.EntityOwner, mv.OwnerID); err != nil {
		return err
	}
	if err := m.ensure(ctx, ledger.EntityDesignation, mv.DesignationID.String()); err != nil {
		return err
	}
	if err := m.ensure(ctx, ledger.EntityClient, mv.ClientID.String()); err != nil {
		return err
	}
	return m.call(ctx, func(ctx context.Context) error { return m.dst.UpsertMovement(ctx, mv) })
}

func (m *Mirror) syncPayment(ctx context.Context, key string) error {
	p, err := read(ctx, m, func(ctx context.Context) (*ledger.Payment, error) { return m.src.Payment(ctx, key) })
	if err != nil {
		return err
	}
	if p == nil {
		return m.remove(ctx, ledger.EntityPayment, key)
	}
	if err := m.ensure(ctx, ledger.EntityOwner, p.OwnerID); err != nil {
		return err
	}
	if err := m.ensure(ctx, ledger.EntityMovement, p.MovementID.String()); err != nil {
		return err
	}
	return m.call(ctx, func(ctx context.Context) error { return m.dst.UpsertPayment(ctx, p) })
}

// ensure materializes a row on the mirror when it is missing there.
func (m *Mirror) ensure(ctx context.Context, e ledger.Entity, key string) error {
	var has bool
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		has, err = m.dst.Has(ctx, e, key)
		return err
	})
	if err != nil || has {
		return err
	}
	logger.Debug(ctx, "materializing missing mirror row", "entity", e, "id", key)
	return m.Apply(ctx, Task{Entity: e, ID: key, Op: ledger.OpUpsert})
}

func (m *Mirror) remove(ctx context.Context, e ledger.Entity, key string) error {
	return m.call(ctx, func(ctx context.Context) error { return m.dst.Delete(ctx, e, key) })
}

// call bounds one store call by the configured timeout.
func (m *Mirror) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

func read[T any](ctx context.Context, m *Mirror, fn func(ctx context.Context) (*T, error)) (*T, error) {
	var out *T
	err := m.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read primary: %w", err)
	}
	return out, nil
}

func (m *Mirror) fail(ctx context.Context, tag string, t Task, err error) {
	m.diag.Record(t.Scope.Key(), tag, string(t.Entity), t.ID, apperror.NewReplication(tag, err))
	m.retry.add(t.Scope.Key(), t.Entity, t.ID)
	m.log.WithContext(ctx).Warnw("replication failed",
		"tag", tag,
		"entity", t.Entity,
		"id", t.ID,
		"op", t.Op,
		"scope", t.Scope.Key(),
		"error", err,
	)
}

func traceAttrs(t Task) []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("replication.entity", string(t.Entity)),
			attribute.String("replication.id", t.ID),
			attribute.String("replication.op", string(t.Op)),
		),
	}
}
