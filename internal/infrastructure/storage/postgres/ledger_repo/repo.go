// Package ledger_repo provides the PostgreSQL implementation of ledger.Repository.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ ledger.Repository = (*Repo)(nil)

var (
	ownerCols       = postgres.ExtractDBColumns[ledger.Owner]()
	designationCols = postgres.ExtractDBColumns[ledger.Designation]()
	clientCols      = postgres.ExtractDBColumns[ledger.Client]()
	movementCols    = postgres.ExtractDBColumns[ledger.Movement]()
	paymentCols     = postgres.ExtractDBColumns[ledger.Payment]()
)

// signedQuantity is the chain delta of a movement row.
const signedQuantity = "CASE WHEN mov_type = 'sortie' THEN -quantite ELSE quantite END"

// Repo implements ledger.Repository on the primary database.
type Repo struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchExecutor
	builder squirrel.StatementBuilderType
}

// New creates a ledger repository. Queries join the transaction carried by ctx.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm, batch: postgres.NewBatchExecutor(txm), builder: postgres.Builder()}
}

func (r *Repo) exec(ctx context.Context, what string, q squirrel.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", what, err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return tag.RowsAffected(), nil
}

// get scans one row into dst; no row maps to NOT_FOUND for entity/key.
func (r *Repo) get(ctx context.Context, dst any, q squirrel.Sqlizer, entity, key string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, key)
		}
		return fmt.Errorf("get %s: %w", entity, err)
	}
	return nil
}

func (r *Repo) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer, what string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		return fmt.Errorf("list %s: %w", what, err)
	}
	return nil
}

func (r *Repo) scalar(ctx context.Context, dst any, q squirrel.Sqlizer, what string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", what, err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(dst); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
