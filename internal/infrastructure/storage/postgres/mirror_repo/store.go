// Package mirror_repo reads and writes ledger tables for replication.
// The same Store serves as replication Source over the primary database
// and as replication Target over the mirror database.
package mirror_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/replication"
)

var (
	_ replication.Source = (*Store)(nil)
	_ replication.Target = (*Store)(nil)
)

type table struct {
	name string
	cols []string
}

var tables = map[ledger.Entity]table{
	ledger.EntityOwner:       {postgres.TableOwners, postgres.ExtractDBColumns[ledger.Owner]()},
	ledger.EntityDesignation: {postgres.TableDesignations, postgres.ExtractDBColumns[ledger.Designation]()},
	ledger.EntityClient:      {postgres.TableClients, postgres.ExtractDBColumns[ledger.Client]()},
	ledger.EntityMovement:    {postgres.TableMovements, postgres.ExtractDBColumns[ledger.Movement]()},
	ledger.EntityPayment:     {postgres.TablePayments, postgres.ExtractDBColumns[ledger.Payment]()},
}

func lookup(e ledger.Entity) (table, error) {
	t, ok := tables[e]
	if !ok {
		return table{}, fmt.Errorf("unknown entity %q", e)
	}
	return t, nil
}

// Store accesses one database through its transaction manager.
type Store struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// New creates a store over txm's pool.
func New(txm *postgres.TxManager) *Store {
	return &Store{txm: txm, builder: postgres.Builder()}
}

// Source

func (s *Store) Owner(ctx context.Context, key string) (*ledger.Owner, error) {
	return getRow[ledger.Owner](ctx, s, ledger.EntityOwner, key)
}

func (s *Store) Designation(ctx context.Context, key string) (*ledger.Designation, error) {
	return getRow[ledger.Designation](ctx, s, ledger.EntityDesignation, key)
}

func (s *Store) Client(ctx context.Context, key string) (*ledger.Client, error) {
	return getRow[ledger.Client](ctx, s, ledger.EntityClient, key)
}

func (s *Store) Movement(ctx context.Context, key string) (*ledger.Movement, error) {
	return getRow[ledger.Movement](ctx, s, ledger.EntityMovement, key)
}

func (s *Store) Payment(ctx context.Context, key string) (*ledger.Payment, error) {
	return getRow[ledger.Payment](ctx, s, ledger.EntityPayment, key)
}

// getRow loads one row by primary key, nil when absent.
func getRow[T any](ctx context.Context, s *Store, e ledger.Entity, key string) (*T, error) {
	t, err := lookup(e)
	if err != nil {
		return nil, err
	}
	sql, args, err := s.builder.Select(t.cols...).
		From(t.name).
		Where(squirrel.Eq{"id": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row T
	if err := pgxscan.Get(ctx, s.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", e, err)
	}
	return &row, nil
}

func (s *Store) keysQuery(scopeKey string, e ledger.Entity) (squirrel.SelectBuilder, error) {
	t, err := lookup(e)
	if err != nil {
		return squirrel.SelectBuilder{}, err
	}
	return s.builder.Select("id::text").
		From(t.name).
		Where(squirrel.Eq{"scope_key": scopeKey}).
		OrderBy("id"), nil
}

// Keys lists the primary keys of table e within a scope.
func (s *Store) Keys(ctx context.Context, scopeKey string, e ledger.Entity) ([]string, error) {
	q, err := s.keysQuery(scopeKey, e)
	if err != nil {
		return nil, err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	keys := []string{}
	if err := pgxscan.Select(ctx, s.txm.GetQuerier(ctx), &keys, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s keys: %w", e, err)
	}
	return keys, nil
}

type ownerScope struct {
	ID          string `db:"id"`
	CompanyCode string `db:"company_code"`
}

// ListScopes returns every scope that owns ledger rows.
func (s *Store) ListScopes(ctx context.Context) ([]tenant.Scope, error) {
	sql, args, err := s.builder.Select("id", "company_code").
		From(postgres.TableOwners).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var owners []ownerScope
	if err := pgxscan.Select(ctx, s.txm.GetQuerier(ctx), &owners, sql, args...); err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	seen := make(map[string]struct{}, len(owners))
	scopes := make([]tenant.Scope, 0, len(owners))
	for _, o := range owners {
		sc := tenant.Scope{UserID: o.ID, CompanyCode: o.CompanyCode}
		if _, dup := seen[sc.Key()]; dup {
			continue
		}
		seen[sc.Key()] = struct{}{}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

// Target

func (s *Store) UpsertOwner(ctx context.Context, o *ledger.Owner) error {
	return s.upsert(ctx, ledger.EntityOwner, o)
}

func (s *Store) UpsertDesignation(ctx context.Context, d *ledger.Designation) error {
	return s.upsert(ctx, ledger.EntityDesignation, d)
}

func (s *Store) UpsertClient(ctx context.Context, c *ledger.Client) error {
	return s.upsert(ctx, ledger.EntityClient, c)
}

func (s *Store) UpsertMovement(ctx context.Context, m *ledger.Movement) error {
	return s.upsert(ctx, ledger.EntityMovement, m)
}

func (s *Store) UpsertPayment(ctx context.Context, p *ledger.Payment) error {
	return s.upsert(ctx, ledger.EntityPayment, p)
}

func (s *Store) upsertQuery(e ledger.Entity, row any) (squirrel.InsertBuilder, error) {
	t, err := lookup(e)
	if err != nil {
		return squirrel.InsertBuilder{}, err
	}
	data := postgres.StructToMap(row)
	q := s.builder.Insert(t.name).Columns(t.cols...)
	values := make([]any, len(t.cols))
	for i, c := range t.cols {
		values[i] = data[c]
	}
	return q.Values(values...).Suffix(postgres.UpsertSuffix("id", t.cols)), nil
}

// upsert inserts row or overwrites every column of the row with the same id.
func (s *Store) upsert(ctx context.Context, e ledger.Entity, row any) error {
	q, err := s.upsertQuery(e, row)
	if err != nil {
		return err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", e, err)
	}
	return nil
}

// Delete removes a row by id; deleting an absent row succeeds.
func (s *Store) Delete(ctx context.Context, e ledger.Entity, key string) error {
	t, err := lookup(e)
	if err != nil {
		return err
	}
	sql, args, err := s.builder.Delete(t.name).Where(squirrel.Eq{"id": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete %s: %w", e, err)
	}
	return nil
}

// Has reports whether the row exists.
func (s *Store) Has(ctx context.Context, e ledger.Entity, key string) (bool, error) {
	t, err := lookup(e)
	if err != nil {
		return false, err
	}
	sql, args, err := s.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From(t.name).
		Where(squirrel.Eq{"id": key}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var ok bool
	if err := s.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("check %s: %w", e, err)
	}
	return ok, nil
}
