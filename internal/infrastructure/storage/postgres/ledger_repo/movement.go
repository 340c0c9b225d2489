package ledger_repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

// mutableMovementCols are rewritten by UpdateMovement.
var mutableMovementCols = postgres.Without(movementCols, "id", "scope_key", "owner_id", "created_at")

func (r *Repo) GetMovement(ctx context.Context, scope tenant.Scope, movementID id.ID, forUpdate bool) (*ledger.Movement, error) {
	q := r.builder.Select(movementCols...).
		From(postgres.TableMovements).
		Where(squirrel.Eq{"id": movementID, "scope_key": scope.Key()})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	var m ledger.Movement
	if err := r.get(ctx, &m, q, "movement", movementID.String()); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) InsertMovement(ctx context.Context, m *ledger.Movement) error {
	q := r.builder.Insert(postgres.TableMovements).
		SetMap(postgres.Pick(postgres.StructToMap(m), movementCols))
	_, err := r.exec(ctx, "insert movement", q)
	return err
}

func (r *Repo) UpdateMovement(ctx context.Context, m *ledger.Movement) error {
	q := r.builder.Update(postgres.TableMovements).
		SetMap(postgres.Pick(postgres.StructToMap(m), mutableMovementCols)).
		Where(squirrel.Eq{"id": m.ID})

	n, err := r.exec(ctx, "update movement", q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("movement", m.ID.String())
	}
	return nil
}

func (r *Repo) restateQuery(m *ledger.Movement) squirrel.UpdateBuilder {
	return r.builder.Update(postgres.TableMovements).
		Set("stock", m.Stock).
		Set("stock_after", m.StockAfter).
		Where(squirrel.Eq{"id": m.ID})
}

// RestateBalances writes stock and stock_after of rows in a single batch.
func (r *Repo) RestateBalances(ctx context.Context, rows []ledger.Movement) error {
	queries := make([]squirrel.Sqlizer, len(rows))
	for i := range rows {
		queries[i] = r.restateQuery(&rows[i])
	}
	affected, err := r.batch.ExecuteBatch(ctx, queries)
	if err != nil {
		return fmt.Errorf("restate balances: %w", err)
	}
	for i, n := range affected {
		if n == 0 {
			return apperror.NewNotFound("movement", rows[i].ID.String())
		}
	}
	return nil
}

// DeleteMovement removes the movement's payments, then the movement.
func (r *Repo) DeleteMovement(ctx context.Context, movementID id.ID) error {
	if _, err := r.exec(ctx, "delete movement payments",
		r.builder.Delete(postgres.TablePayments).Where(squirrel.Eq{"movement_id": movementID})); err != nil {
		return err
	}
	n, err := r.exec(ctx, "delete movement",
		r.builder.Delete(postgres.TableMovements).Where(squirrel.Eq{"id": movementID}))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("movement", movementID.String())
	}
	return nil
}

type positionRow struct {
	Date time.Time `db:"mov_date"`
	ID   id.ID     `db:"id"`
}

func (r *Repo) LastPosition(ctx context.Context, designationID id.ID) (*ledger.Position, error) {
	q := r.builder.Select("mov_date", "id").
		From(postgres.TableMovements).
		Where(squirrel.Eq{"designation_id": designationID}).
		OrderBy("mov_date DESC", "id DESC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var row positionRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &ledger.Position{Date: row.Date, ID: row.ID}, nil
}

func (r *Repo) SumBefore(ctx context.Context, designationID id.ID, pos ledger.Position, exclude id.ID) (int64, error) {
	var sum int64
	if err := r.scalar(ctx, &sum, r.sumBeforeQuery(designationID, pos, exclude), "sum chain prefix"); err != nil {
		return 0, err
	}
	return sum, nil
}

// ShiftAfter moves both balances of the chain tail after pos by delta.
func (r *Repo) ShiftAfter(ctx context.Context, designationID id.ID, pos ledger.Position, delta int64) ([]ledger.Movement, error) {
	var rows []ledger.Movement
	if err := r.selectAll(ctx, &rows, r.shiftAfterQuery(designationID, pos, delta), "shifted movements"); err != nil {
		return nil, err
	}
	// RETURNING carries no order.
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Position().Before(rows[j].Position())
	})
	return rows, nil
}

func (r *Repo) ListChain(ctx context.Context, scope tenant.Scope, designationID id.ID) ([]ledger.Movement, error) {
	q := r.builder.Select(movementCols...).
		From(postgres.TableMovements).
		Where(squirrel.Eq{"designation_id": designationID, "scope_key": scope.Key()}).
		OrderBy("mov_date", "id")

	rows := []ledger.Movement{}
	if err := r.selectAll(ctx, &rows, q, "chain"); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) sumBeforeQuery(designationID id.ID, pos ledger.Position, exclude id.ID) squirrel.SelectBuilder {
	return r.builder.Select("COALESCE(SUM(" + signedQuantity + "), 0)::bigint").
		From(postgres.TableMovements).
		Where(squirrel.Eq{"designation_id": designationID}).
		Where(before(pos)).
		Where(squirrel.NotEq{"id": exclude})
}

func (r *Repo) shiftAfterQuery(designationID id.ID, pos ledger.Position, delta int64) squirrel.UpdateBuilder {
	return r.builder.Update(postgres.TableMovements).
		Set("stock", squirrel.Expr("stock + ?", delta)).
		Set("stock_after", squirrel.Expr("stock_after + ?", delta)).
		Where(squirrel.Eq{"designation_id": designationID}).
		Where(after(pos)).
		Suffix("RETURNING " + joinCols(movementCols))
}

// before matches rows strictly before pos in chain order.
func before(pos ledger.Position) squirrel.Sqlizer {
	return squirrel.Expr("(mov_date, id) < (?, ?)", pos.Date, pos.ID)
}

// after matches rows strictly after pos in chain order.
func after(pos ledger.Position) squirrel.Sqlizer {
	return squirrel.Expr("(mov_date, id) > (?, ?)", pos.Date, pos.ID)
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}
