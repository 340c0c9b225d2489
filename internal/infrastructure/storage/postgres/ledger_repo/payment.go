package ledger_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

func (r *Repo) SumPayments(ctx context.Context, movementID id.ID, exclude id.ID) (types.Money, error) {
	q := r.builder.Select("COALESCE(SUM(montant), 0)").
		From(postgres.TablePayments).
		Where(squirrel.Eq{"movement_id": movementID}).
		Where(squirrel.NotEq{"id": exclude})

	sum := types.Zero()
	if err := r.scalar(ctx, &sum, q, "sum payments"); err != nil {
		return types.Zero(), err
	}
	return sum, nil
}

func (r *Repo) GetPayment(ctx context.Context, scope tenant.Scope, paymentID id.ID) (*ledger.Payment, error) {
	q := r.builder.Select(paymentCols...).
		From(postgres.TablePayments).
		Where(squirrel.Eq{"id": paymentID, "scope_key": scope.Key()})

	var p ledger.Payment
	if err := r.get(ctx, &p, q, "payment", paymentID.String()); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListPayments(ctx context.Context, scope tenant.Scope, movementID id.ID) ([]ledger.Payment, error) {
	q := r.builder.Select(paymentCols...).
		From(postgres.TablePayments).
		Where(squirrel.Eq{"movement_id": movementID, "scope_key": scope.Key()}).
		OrderBy("pay_date", "id")

	rows := []ledger.Payment{}
	if err := r.selectAll(ctx, &rows, q, "payments"); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	q := r.builder.Insert(postgres.TablePayments).
		SetMap(postgres.Pick(postgres.StructToMap(p), paymentCols))
	_, err := r.exec(ctx, "insert payment", q)
	return err
}

func (r *Repo) UpdatePayment(ctx context.Context, p *ledger.Payment) error {
	q := r.builder.Update(postgres.TablePayments).
		Set("pay_date", p.Date).
		Set("montant", p.Montant).
		Where(squirrel.Eq{"id": p.ID})

	n, err := r.exec(ctx, "update payment", q)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("payment", p.ID.String())
	}
	return nil
}

func (r *Repo) DeletePayment(ctx context.Context, paymentID id.ID) error {
	n, err := r.exec(ctx, "delete payment",
		r.builder.Delete(postgres.TablePayments).Where(squirrel.Eq{"id": paymentID}))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("payment", paymentID.String())
	}
	return nil
}
