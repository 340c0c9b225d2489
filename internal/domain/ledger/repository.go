package ledger

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
)

// Repository defines storage operations for the ledger.
// Every method runs on the transaction carried by ctx, if any.
// Lookups outside the scope return apperror NOT_FOUND.
type Repository interface {
	// Directory

	// EnsureOwner materializes the scope's owning user.
	EnsureOwner(ctx context.Context, scope tenant.Scope) error

	// FindOrCreateDesignation resolves a name case-insensitively, inserting it when absent.
	// A concurrent insert of the same name resolves to the existing row.
	FindOrCreateDesignation(ctx context.Context, scope tenant.Scope, name string) (*Designation, bool, error)

	GetDesignation(ctx context.Context, scope tenant.Scope, designationID id.ID) (*Designation, error)

	// LockDesignations takes row locks in id order and returns the locked rows.
	LockDesignations(ctx context.Context, scope tenant.Scope, ids []id.ID) (map[id.ID]*Designation, error)

	// AdjustCurrentStock adds delta to current_stock and returns the new value.
	AdjustCurrentStock(ctx context.Context, designationID id.ID, delta int64) (int64, error)

	SetCurrentStock(ctx context.Context, designationID id.ID, value int64) error

	FindOrCreateClient(ctx context.Context, scope tenant.Scope, name string) (*Client, bool, error)

	GetClient(ctx context.Context, scope tenant.Scope, clientID id.ID) (*Client, error)

	// Chain

	// GetMovement loads a movement; forUpdate takes a row lock.
	GetMovement(ctx context.Context, scope tenant.Scope, movementID id.ID, forUpdate bool) (*Movement, error)

	InsertMovement(ctx context.Context, m *Movement) error

	// UpdateMovement rewrites every mutable column of m.
	UpdateMovement(ctx context.Context, m *Movement) error

	// RestateBalances rewrites stock and stock_after of many movements at once.
	RestateBalances(ctx context.Context, rows []Movement) error

	// DeleteMovement removes the movement and its payments.
	DeleteMovement(ctx context.Context, movementID id.ID) error

	// LastPosition returns the position of the last movement of a chain, nil for an empty chain.
	LastPosition(ctx context.Context, designationID id.ID) (*Position, error)

	// SumBefore is the signed quantity sum of the chain strictly before pos, excluding one row.
	SumBefore(ctx context.Context, designationID id.ID, pos Position, exclude id.ID) (int64, error)

	// ShiftAfter adds delta to stock and stock_after of every movement strictly
	// after pos and returns the adjusted rows in chain order.
	ShiftAfter(ctx context.Context, designationID id.ID, pos Position, delta int64) ([]Movement, error)

	// ListChain returns a designation's movements in chain order.
	ListChain(ctx context.Context, scope tenant.Scope, designationID id.ID) ([]Movement, error)

	// Payments

	SumPayments(ctx context.Context, movementID id.ID, exclude id.ID) (types.Money, error)

	GetPayment(ctx context.Context, scope tenant.Scope, paymentID id.ID) (*Payment, error)

	ListPayments(ctx context.Context, scope tenant.Scope, movementID id.ID) ([]Payment, error)

	InsertPayment(ctx context.Context, p *Payment) error

	UpdatePayment(ctx context.Context, p *Payment) error

	DeletePayment(ctx context.Context, paymentID id.ID) error
}
