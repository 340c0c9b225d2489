package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Service is the ledger store: movement CRUD over the balance maintainer.
type Service struct {
	repo       Repository
	txm        tx.Manager
	maintainer *Maintainer
	notifier   Notifier
	now        func() time.Time
}

// NewService creates a ledger service. A nil notifier disables replication.
func NewService(repo Repository, txm tx.Manager, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		repo:       repo,
		txm:        txm,
		maintainer: NewMaintainer(repo),
		notifier:   notifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MovementResult is returned by create and edit.
type MovementResult struct {
	Movement     Movement   `json:"movement"`
	CurrentStock int64      `json:"currentStock"`
	Adjusted     []Movement `json:"adjusted"`
	// PreviousStock is set when an edit moved the movement to another designation.
	PreviousStock *int64 `json:"previousStock,omitempty"`
}

// DeleteResult is returned by delete.
type DeleteResult struct {
	MovementID    id.ID      `json:"movementId"`
	DesignationID id.ID      `json:"designationId"`
	CurrentStock  int64      `json:"currentStock"`
	Adjusted      []Movement `json:"adjusted"`
}

// CreateMovement validates and records a new movement.
func (s *Service) CreateMovement(ctx context.Context, scope tenant.Scope, in CreateMovementInput, opts ...Option) (*MovementResult, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}
	d, err := in.validate()
	if err != nil {
		return nil, err
	}

	var (
		result  *MovementResult
		changes changeSet
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.EnsureOwner(ctx, scope); err != nil {
			return err
		}
		des, err := s.resolveDesignation(ctx, scope, in.Designation, &changes)
		if err != nil {
			return err
		}
		cli, err := s.resolveClient(ctx, scope, in.Client, &changes)
		if err != nil {
			return err
		}
		locked, err := s.repo.LockDesignations(ctx, scope, []id.ID{des.ID})
		if err != nil {
			return err
		}
		des = locked[des.ID]

		now := s.now()
		m := &Movement{
			ID:            id.New(),
			ScopeKey:      scope.Key(),
			OwnerID:       scope.UserID,
			DesignationID: des.ID,
			ClientID:      cli.ID,
			Date:          d.date,
			Type:          d.typ,
			Quantite:      d.quantite,
			Prix:          d.prix,
			Montant:       d.quantite * d.prix,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		out, err := s.maintainer.Create(ctx, des, m)
		if err != nil {
			return err
		}

		changes.upsert(EntityMovement, m.ID)
		changes.movements(out.Adjusted)
		changes.upsert(EntityDesignation, des.ID)
		result = &MovementResult{Movement: *m, CurrentStock: out.Stock[des.ID], Adjusted: out.Adjusted}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "movement created",
		"movement_id", result.Movement.ID,
		"designation_id", result.Movement.DesignationID,
		"type", result.Movement.Type,
		"quantite", result.Movement.Quantite,
		"current_stock", result.CurrentStock,
	)
	s.publish(ctx, scope, changes, opts)
	return result, nil
}

// EditMovement applies a partial update and recomputes both affected chains.
func (s *Service) EditMovement(ctx context.Context, scope tenant.Scope, movementID id.ID, in EditMovementInput, opts ...Option) (*MovementResult, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}

	var (
		result  *MovementResult
		changes changeSet
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Designations or clients created by this edit are owned by the editor.
		if err := s.repo.EnsureOwner(ctx, scope); err != nil {
			return err
		}
		cur, err := s.repo.GetMovement(ctx, scope, movementID, false)
		if err != nil {
			return err
		}
		if _, err := in.apply(*cur); err != nil {
			return err
		}

		targetDesignation := cur.DesignationID
		if in.Designation != nil {
			des, err := s.resolveDesignation(ctx, scope, *in.Designation, &changes)
			if err != nil {
				return err
			}
			targetDesignation = des.ID
		}
		targetClient := cur.ClientID
		if in.Client != nil {
			cli, err := s.resolveClient(ctx, scope, *in.Client, &changes)
			if err != nil {
				return err
			}
			targetClient = cli.ID
		}

		if _, err := s.repo.LockDesignations(ctx, scope, lockOrder(cur.DesignationID, targetDesignation)); err != nil {
			return err
		}

		// Re-read under the chain lock; anything that moved it meanwhile held the same lock.
		old, err := s.repo.GetMovement(ctx, scope, movementID, true)
		if err != nil {
			return err
		}
		if old.DesignationID != cur.DesignationID {
			return apperror.NewConcurrentModification("movement", movementID.String())
		}
		d, err := in.apply(*old)
		if err != nil {
			return err
		}

		next := *old
		next.DesignationID = targetDesignation
		next.ClientID = targetClient
		next.Date = d.date
		next.Type = d.typ
		next.Quantite = d.quantite
		next.Prix = d.prix
		next.Montant = d.quantite * d.prix
		next.UpdatedAt = s.now()

		if next.Montant < old.Montant {
			paid, err := s.repo.SumPayments(ctx, old.ID, id.Nil())
			if err != nil {
				return err
			}
			if types.ExceedsCeiling(paid, next.Total()) {
				return apperror.NewPaymentCeiling(old.ID.String(), next.Total().String(), paid.String(), "0")
			}
		}

		out, err := s.maintainer.Edit(ctx, *old, &next)
		if err != nil {
			return err
		}

		changes.upsert(EntityMovement, next.ID)
		changes.movements(out.Adjusted)
		changes.upsert(EntityDesignation, next.DesignationID)
		result = &MovementResult{Movement: next, CurrentStock: out.Stock[next.DesignationID], Adjusted: out.Adjusted}
		if old.DesignationID != next.DesignationID {
			changes.upsert(EntityDesignation, old.DesignationID)
			prev := out.Stock[old.DesignationID]
			result.PreviousStock = &prev
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "movement edited",
		"movement_id", movementID,
		"designation_id", result.Movement.DesignationID,
		"adjusted", len(result.Adjusted),
		"current_stock", result.CurrentStock,
	)
	s.publish(ctx, scope, changes, opts)
	return result, nil
}

// DeleteMovement removes a movement and its payments.
func (s *Service) DeleteMovement(ctx context.Context, scope tenant.Scope, movementID id.ID, opts ...Option) (*DeleteResult, error) {
	if !scope.Valid() {
		return nil, apperror.NewValidation("tenant scope is required")
	}

	var (
		result  *DeleteResult
		changes changeSet
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetMovement(ctx, scope, movementID, false)
		if err != nil {
			return err
		}
		if _, err := s.repo.LockDesignations(ctx, scope, []id.ID{cur.DesignationID}); err != nil {
			return err
		}
		m, err := s.repo.GetMovement(ctx, scope, movementID, true)
		if err != nil {
			return err
		}
		if m.DesignationID != cur.DesignationID {
			return apperror.NewConcurrentModification("movement", movementID.String())
		}

		payments, err := s.repo.ListPayments(ctx, scope, m.ID)
		if err != nil {
			return err
		}

		out, err := s.maintainer.Delete(ctx, *m)
		if err != nil {
			return err
		}

		for _, p := range payments {
			changes.remove(EntityPayment, p.ID)
		}
		changes.remove(EntityMovement, m.ID)
		changes.movements(out.Adjusted)
		changes.upsert(EntityDesignation, m.DesignationID)
		result = &DeleteResult{
			MovementID:    m.ID,
			DesignationID: m.DesignationID,
			CurrentStock:  out.Stock[m.DesignationID],
			Adjusted:      out.Adjusted,
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "movement deleted",
		"movement_id", movementID,
		"designation_id", result.DesignationID,
		"adjusted", len(result.Adjusted),
		"current_stock", result.CurrentStock,
	)
	s.publish(ctx, scope, changes, opts)
	return result, nil
}

// GetMovement returns one movement.
func (s *Service) GetMovement(ctx context.Context, scope tenant.Scope, movementID id.ID) (*Movement, error) {
	m, err := s.repo.GetMovement(ctx, scope, movementID, false)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	return m, nil
}

// Chain is a designation with its movements in chain order.
type Chain struct {
	Designation Designation `json:"designation"`
	Movements   []Movement  `json:"movements"`
}

// ListChain returns a designation's movements in chain order.
func (s *Service) ListChain(ctx context.Context, scope tenant.Scope, designationID id.ID) (*Chain, error) {
	des, err := s.repo.GetDesignation(ctx, scope, designationID)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	rows, err := s.repo.ListChain(ctx, scope, designationID)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	return &Chain{Designation: *des, Movements: rows}, nil
}

// RebuildChain recomputes every balance of a designation's chain under its lock.
func (s *Service) RebuildChain(ctx context.Context, scope tenant.Scope, designationID id.ID, opts ...Option) (*RebuildReport, error) {
	var (
		report  *RebuildReport
		changes changeSet
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.repo.LockDesignations(ctx, scope, []id.ID{designationID})
		if err != nil {
			return err
		}
		report, err = s.maintainer.Rebuild(ctx, scope, locked[designationID])
		if err != nil {
			return err
		}
		changes.movements(report.Rows)
		if report.PreviousStock != report.CurrentStock {
			changes.upsert(EntityDesignation, designationID)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	logger.Info(ctx, "chain rebuilt",
		"designation_id", designationID,
		"movements", report.Movements,
		"repaired", report.Repaired,
		"previous_stock", report.PreviousStock,
		"current_stock", report.CurrentStock,
	)
	s.publish(ctx, scope, changes, opts)
	return report, nil
}

func (s *Service) resolveDesignation(ctx context.Context, scope tenant.Scope, ref Ref, changes *changeSet) (*Designation, error) {
	if ref.ID != nil && !id.IsNil(*ref.ID) {
		return s.repo.GetDesignation(ctx, scope, *ref.ID)
	}
	des, created, err := s.repo.FindOrCreateDesignation(ctx, scope, normalizeName(ref.Name))
	if err != nil {
		return nil, err
	}
	if created {
		changes.add(EntityOwner, scope.UserID, OpUpsert)
		changes.upsert(EntityDesignation, des.ID)
	}
	return des, nil
}

func (s *Service) resolveClient(ctx context.Context, scope tenant.Scope, ref Ref, changes *changeSet) (*Client, error) {
	if ref.ID != nil && !id.IsNil(*ref.ID) {
		return s.repo.GetClient(ctx, scope, *ref.ID)
	}
	cli, created, err := s.repo.FindOrCreateClient(ctx, scope, normalizeName(ref.Name))
	if err != nil {
		return nil, err
	}
	if created {
		changes.add(EntityOwner, scope.UserID, OpUpsert)
		changes.upsert(EntityClient, cli.ID)
	}
	return cli, nil
}

// publish hands committed changes to the notifier.
func (s *Service) publish(ctx context.Context, scope tenant.Scope, changes changeSet, opts []Option) {
	if len(changes.items) == 0 {
		return
	}
	o := collectOptions(opts)
	s.notifier.Notify(ctx, scope, changes.items, o.waitReplication)
}

// lockOrder returns the distinct designation ids in ascending order.
func lockOrder(a, b id.ID) []id.ID {
	if a == b {
		return []id.ID{a}
	}
	if id.Compare(a, b) > 0 {
		a, b = b, a
	}
	return []id.ID{a, b}
}
