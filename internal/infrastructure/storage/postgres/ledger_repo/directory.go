package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

// EnsureOwner inserts the scope's user once.
func (r *Repo) EnsureOwner(ctx context.Context, scope tenant.Scope) error {
	q := r.builder.Insert(postgres.TableOwners).
		Columns("id", "scope_key", "company_code", "created_at").
		Values(scope.UserID, scope.Key(), scope.CompanyCode, time.Now().UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING")
	_, err := r.exec(ctx, "insert owner", q)
	return err
}

// FindOrCreateDesignation resolves name within scope, inserting it when absent.
func (r *Repo) FindOrCreateDesignation(ctx context.Context, scope tenant.Scope, name string) (*ledger.Designation, bool, error) {
	now := time.Now().UTC()
	d := &ledger.Designation{
		ID:        id.New(),
		ScopeKey:  scope.Key(),
		OwnerID:   scope.UserID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := r.findOrCreate(ctx, postgres.TableDesignations, designationCols, d, scope, name, "designation")
	if err != nil {
		return nil, false, err
	}
	return d, created, nil
}

// FindOrCreateClient resolves name within scope, inserting it when absent.
func (r *Repo) FindOrCreateClient(ctx context.Context, scope tenant.Scope, name string) (*ledger.Client, bool, error) {
	c := &ledger.Client{
		ID:        id.New(),
		ScopeKey:  scope.Key(),
		OwnerID:   scope.UserID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	created, err := r.findOrCreate(ctx, postgres.TableClients, clientCols, c, scope, name, "client")
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}

// findOrCreate inserts row unless (scope_key, lower(name)) exists, then
// loads the stored row into row. A concurrent insert of the same name makes
// the insert a no-op and the select returns the winner.
func (r *Repo) findOrCreate(ctx context.Context, table string, cols []string, row any, scope tenant.Scope, name, entity string) (bool, error) {
	ins := r.builder.Insert(table).
		SetMap(postgres.Pick(postgres.StructToMap(row), cols)).
		Suffix("ON CONFLICT DO NOTHING RETURNING id")
	sql, args, err := ins.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert %s: %w", entity, err)
	}
	var inserted []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &inserted, sql, args...); err != nil {
		return false, fmt.Errorf("insert %s: %w", entity, err)
	}
	if len(inserted) == 1 {
		return true, nil
	}

	if err := r.get(ctx, row, r.byNameQuery(table, cols, scope, name), entity, name); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repo) byNameQuery(table string, cols []string, scope tenant.Scope, name string) squirrel.SelectBuilder {
	return r.builder.Select(cols...).
		From(table).
		Where(squirrel.Eq{"scope_key": scope.Key()}).
		Where(squirrel.Expr("lower(name) = lower(?)", name)).
		Limit(1)
}

func (r *Repo) GetDesignation(ctx context.Context, scope tenant.Scope, designationID id.ID) (*ledger.Designation, error) {
	var d ledger.Designation
	q := r.builder.Select(designationCols...).
		From(postgres.TableDesignations).
		Where(squirrel.Eq{"id": designationID, "scope_key": scope.Key()})
	if err := r.get(ctx, &d, q, "designation", designationID.String()); err != nil {
		return nil, err
	}
	return &d, nil
}

// LockDesignations locks rows in ascending id order so concurrent chain
// mutations acquire them in the same sequence.
func (r *Repo) LockDesignations(ctx context.Context, scope tenant.Scope, ids []id.ID) (map[id.ID]*ledger.Designation, error) {
	var rows []ledger.Designation
	if err := r.selectAll(ctx, &rows, r.lockDesignationsQuery(scope, ids), "designations"); err != nil {
		return nil, err
	}

	out := make(map[id.ID]*ledger.Designation, len(rows))
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	for _, v := range ids {
		if _, ok := out[v]; !ok {
			return nil, apperror.NewNotFound("designation", v.String())
		}
	}
	return out, nil
}

func (r *Repo) lockDesignationsQuery(scope tenant.Scope, ids []id.ID) squirrel.SelectBuilder {
	return r.builder.Select(designationCols...).
		From(postgres.TableDesignations).
		Where(squirrel.Eq{"id": ids, "scope_key": scope.Key()}).
		OrderBy("id").
		Suffix("FOR UPDATE")
}

func (r *Repo) AdjustCurrentStock(ctx context.Context, designationID id.ID, delta int64) (int64, error) {
	q := r.builder.Update(postgres.TableDesignations).
		Set("current_stock", squirrel.Expr("current_stock + ?", delta)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": designationID}).
		Suffix("RETURNING current_stock")

	var stock int64
	if err := r.scalar(ctx, &stock, q, "adjust current_stock"); err != nil {
		if pgxscan.NotFound(err) {
			return 0, apperror.NewNotFound("designation", designationID.String())
		}
		return 0, err
	}
	return stock, nil
}

func (r *Repo) SetCurrentStock(ctx context.Context, designationID id.ID, value int64) error {
	q := r.builder.Update(postgres.TableDesignations).
		Set("current_stock", value).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": designationID})

	n, err := r.exec(ctx, "set current_stock", q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("designation", designationID.String())
	}
	return nil
}

func (r *Repo) GetClient(ctx context.Context, scope tenant.Scope, clientID id.ID) (*ledger.Client, error) {
	var c ledger.Client
	q := r.builder.Select(clientCols...).
		From(postgres.TableClients).
		Where(squirrel.Eq{"id": clientID, "scope_key": scope.Key()})
	if err := r.get(ctx, &c, q, "client", clientID.String()); err != nil {
		return nil, err
	}
	return &c, nil
}
