// Package cashflow_repo provides the PostgreSQL implementation of cashflow.Repository.
package cashflow_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/cashflow"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ cashflow.Repository = (*Repo)(nil)

// feedCTE classifies movements, payments and expenses of one scope into a
// single row shape. Payments against an entree are purchases (achat) and
// against a sortie collections (paiement).
const feedCTE = `WITH feed AS (
	SELECT m.id, m.mov_date AS row_date, m.mov_type AS kind,
		d.name AS designation, c.name AS client, '' AS label,
		NULL::uuid AS movement_id, NULL::date AS movement_date,
		m.quantite AS quantite, m.montant::numeric AS montant
	FROM movements m
	JOIN designations d ON d.id = m.designation_id
	JOIN clients c ON c.id = m.client_id
	WHERE m.scope_key = ?
	UNION ALL
	SELECT p.id, p.pay_date,
		CASE WHEN m.mov_type = 'entree' THEN 'achat' ELSE 'paiement' END,
		d.name, c.name, '',
		m.id, m.mov_date,
		m.quantite, p.montant
	FROM payments p
	JOIN movements m ON m.id = p.movement_id
	JOIN designations d ON d.id = m.designation_id
	JOIN clients c ON c.id = m.client_id
	WHERE p.scope_key = ?
	UNION ALL
	SELECT e.id, e.exp_date, 'depense',
		'', '', e.label,
		NULL, NULL,
		NULL, e.montant
	FROM expenses e
	WHERE e.scope_key = ?
)`

// contribution is the signed cash effect of a feed row.
const contribution = "CASE kind WHEN 'paiement' THEN montant WHEN 'achat' THEN -montant WHEN 'depense' THEN -montant ELSE 0 END"

var rowCols = postgres.ExtractDBColumns[cashflow.Row]()

// Repo reads the cash-flow feed from the primary database.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// New creates a cash-flow repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm, builder: postgres.Builder()}
}

func (r *Repo) feed(scope tenant.Scope, cols ...string) squirrel.SelectBuilder {
	key := scope.Key()
	return r.builder.Select(cols...).
		Prefix(feedCTE, key, key, key).
		From("feed")
}

func (r *Repo) rowsQuery(scope tenant.Scope, q cashflow.Query) squirrel.SelectBuilder {
	sb := r.feed(scope, rowCols...)
	if q.IsSearch() {
		pattern := "%" + escapeLike(q.Search) + "%"
		sb = sb.Where(squirrel.Or{
			squirrel.ILike{"designation": pattern},
			squirrel.ILike{"client": pattern},
			squirrel.ILike{"label": pattern},
		})
	} else {
		sb = sb.Where(squirrel.GtOrEq{"row_date": *q.From}).
			Where(squirrel.LtOrEq{"row_date": *q.To})
	}
	return sb.OrderBy("row_date", "id")
}

// Rows returns the feed rows selected by q, ordered by date and id.
func (r *Repo) Rows(ctx context.Context, scope tenant.Scope, q cashflow.Query) ([]cashflow.Row, error) {
	sql, args, err := r.rowsQuery(scope, q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows := []cashflow.Row{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select cash-flow rows: %w", err)
	}
	return rows, nil
}

func (r *Repo) balanceBeforeQuery(scope tenant.Scope, day time.Time) squirrel.SelectBuilder {
	return r.feed(scope, "COALESCE(SUM("+contribution+"), 0)").
		Where(squirrel.Lt{"row_date": day})
}

// BalanceBefore sums cash contributions dated strictly before day.
func (r *Repo) BalanceBefore(ctx context.Context, scope tenant.Scope, day time.Time) (types.Money, error) {
	sql, args, err := r.balanceBeforeQuery(scope, day).ToSql()
	if err != nil {
		return types.Zero(), fmt.Errorf("build query: %w", err)
	}

	sum := types.Zero()
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&sum); err != nil {
		return types.Zero(), fmt.Errorf("opening balance: %w", err)
	}
	return sum, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user text match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
