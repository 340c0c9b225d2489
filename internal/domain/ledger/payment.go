package ledger

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// PaymentService tracks partial payments against movements.
// The sum of a movement's payments never exceeds its montant.
type PaymentService struct {
	repo     Repository
	txm      tx.Manager
	notifier Notifier
}

// NewPaymentService creates a payment tracker. A nil notifier disables replication.
func NewPaymentService(repo Repository, txm tx.Manager, notifier Notifier) *PaymentService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &PaymentService{repo: repo, txm: txm, notifier: notifier}
}

// PaymentResult is returned by record and edit.
type PaymentResult struct {
	Payment Payment       `json:"payment"`
	Status  PaymentStatus `json:"status"`
}

// RecordPayment adds a payment against a movement.
func (s *PaymentService) RecordPayment(ctx context.Context, scope tenant.Scope, in RecordPaymentInput, opts ...Option) (*PaymentResult, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}
	if id.IsNil(in.MovementID) {
		return nil, apperror.NewInvalidField("movementId", "movementId is required")
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if err := validatePaymentAmount(in.Montant); err != nil {
		return nil, err
	}

	var result *PaymentResult
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Any member of a company scope may pay; the payer owns the payment row.
		if err := s.repo.EnsureOwner(ctx, scope); err != nil {
			return err
		}
		m, err := s.repo.GetMovement(ctx, scope, in.MovementID, true)
		if err != nil {
			return err
		}
		paid, err := s.checkCeiling(ctx, m, id.Nil(), in.Montant)
		if err != nil {
			return err
		}

		p := &Payment{
			ID:         id.New(),
			ScopeKey:   scope.Key(),
			OwnerID:    scope.UserID,
			MovementID: m.ID,
			Date:       date,
			Montant:    in.Montant,
		}
		if err := s.repo.InsertPayment(ctx, p); err != nil {
			return err
		}
		result = &PaymentResult{Payment: *p, Status: newPaymentStatus(m, paid.Add(in.Montant))}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "payment recorded",
		"payment_id", result.Payment.ID,
		"movement_id", in.MovementID,
		"montant", in.Montant.String(),
		"remainder", result.Status.Remainder.String(),
	)
	s.publish(ctx, scope, EntityPayment, result.Payment.ID, OpUpsert, opts)
	return result, nil
}

// EditPayment changes a payment's date or amount.
func (s *PaymentService) EditPayment(ctx context.Context, scope tenant.Scope, paymentID id.ID, in EditPaymentInput, opts ...Option) (*PaymentResult, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}
	if in.Montant != nil {
		if err := validatePaymentAmount(*in.Montant); err != nil {
			return nil, err
		}
	}
	if in.Date != nil {
		if _, err := ParseDate(*in.Date); err != nil {
			return nil, err
		}
	}

	var result *PaymentResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.EnsureOwner(ctx, scope); err != nil {
			return err
		}
		p, m, err := s.loadLocked(ctx, scope, paymentID)
		if err != nil {
			return err
		}

		if in.Date != nil {
			p.Date, _ = ParseDate(*in.Date)
		}
		if in.Montant != nil {
			p.Montant = *in.Montant
		}
		paid, err := s.checkCeiling(ctx, m, p.ID, p.Montant)
		if err != nil {
			return err
		}
		if err := s.repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		result = &PaymentResult{Payment: *p, Status: newPaymentStatus(m, paid.Add(p.Montant))}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "payment edited",
		"payment_id", paymentID,
		"montant", result.Payment.Montant.String(),
		"remainder", result.Status.Remainder.String(),
	)
	s.publish(ctx, scope, EntityPayment, paymentID, OpUpsert, opts)
	return result, nil
}

// DeletePayment removes a payment and returns the movement's new status.
func (s *PaymentService) DeletePayment(ctx context.Context, scope tenant.Scope, paymentID id.ID, opts ...Option) (*PaymentStatus, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}

	var status PaymentStatus
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		p, m, err := s.loadLocked(ctx, scope, paymentID)
		if err != nil {
			return err
		}
		if err := s.repo.DeletePayment(ctx, p.ID); err != nil {
			return err
		}
		paid, err := s.repo.SumPayments(ctx, m.ID, id.Nil())
		if err != nil {
			return err
		}
		status = newPaymentStatus(m, paid)
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "payment deleted", "payment_id", paymentID, "remainder", status.Remainder.String())
	s.publish(ctx, scope, EntityPayment, paymentID, OpDelete, opts)
	return &status, nil
}

// PaymentStatus returns total paid and remainder of a movement.
func (s *PaymentService) PaymentStatus(ctx context.Context, scope tenant.Scope, movementID id.ID) (*PaymentStatus, error) {
	m, err := s.repo.GetMovement(ctx, scope, movementID, false)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	paid, err := s.repo.SumPayments(ctx, m.ID, id.Nil())
	if err != nil {
		return nil, apperror.Storage(err)
	}
	status := newPaymentStatus(m, paid)
	return &status, nil
}

// MovementPayments lists a movement's payments with its status.
type MovementPayments struct {
	Status   PaymentStatus `json:"status"`
	Payments []Payment     `json:"payments"`
}

// ListPayments returns the payments held against a movement.
func (s *PaymentService) ListPayments(ctx context.Context, scope tenant.Scope, movementID id.ID) (*MovementPayments, error) {
	m, err := s.repo.GetMovement(ctx, scope, movementID, false)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	rows, err := s.repo.ListPayments(ctx, scope, m.ID)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	paid := types.Zero()
	for _, p := range rows {
		paid = paid.Add(p.Montant)
	}
	return &MovementPayments{Status: newPaymentStatus(m, paid), Payments: rows}, nil
}

// loadLocked returns a payment and its movement with the movement row locked.
func (s *PaymentService) loadLocked(ctx context.Context, scope tenant.Scope, paymentID id.ID) (*Payment, *Movement, error) {
	p, err := s.repo.GetPayment(ctx, scope, paymentID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.repo.GetMovement(ctx, scope, p.MovementID, true)
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}

// checkCeiling returns the amount already paid excluding one payment, failing
// when adding amount would exceed the movement's montant.
func (s *PaymentService) checkCeiling(ctx context.Context, m *Movement, exclude id.ID, amount types.Money) (types.Money, error) {
	paid, err := s.repo.SumPayments(ctx, m.ID, exclude)
	if err != nil {
		return types.Zero(), err
	}
	if types.ExceedsCeiling(paid.Add(amount), m.Total()) {
		return types.Zero(), apperror.NewPaymentCeiling(m.ID.String(), m.Total().String(), paid.String(), amount.String())
	}
	return paid, nil
}

func (s *PaymentService) publish(ctx context.Context, scope tenant.Scope, e Entity, v id.ID, op Op, opts []Option) {
	var changes changeSet
	changes.add(e, v.String(), op)
	s.notifier.Notify(ctx, scope, changes.items, collectOptions(opts).waitReplication)
}
