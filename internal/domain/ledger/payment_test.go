package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/core/types"
)

func newTestPayments() (*Service, *PaymentService, *memStore, *recordingNotifier) {
	store := newMemStore()
	n := &recordingNotifier{}
	return NewService(store, store, n), NewPaymentService(store, store, n), store, n
}

func money(s string) types.Money { return types.MustMoney(s) }

func TestPaymentService_Ceiling(t *testing.T) {
	ctx := context.Background()
	svc, payments, store, _ := newTestPayments()

	mv := mustCreate(t, svc, "2025-01-01", "entree", 25, 10, "Riz")
	require.Equal(t, int64(250), mv.Movement.Montant)

	first, err := payments.RecordPayment(ctx, testScope, RecordPaymentInput{
		MovementID: mv.Movement.ID, Date: "2025-01-01", Montant: money("200"),
	})
	require.NoError(t, err)
	assert.True(t, first.Status.TotalPaid.Equal(money("200")))
	assert.True(t, first.Status.Remainder.Equal(money("50")))

	_, err = payments.RecordPayment(ctx, testScope, RecordPaymentInput{
		MovementID: mv.Movement.ID, Date: "2025-01-02", Montant: money("60"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodePaymentCeiling))
	assert.Len(t, store.payments, 1)

	// Editing excludes the payment itself from the already-paid sum.
	edited, err := payments.EditPayment(ctx, testScope, first.Payment.ID, EditPaymentInput{Montant: ptr(money("250"))})
	require.NoError(t, err)
	assert.True(t, edited.Status.Remainder.IsZero())

	_, err = payments.EditPayment(ctx, testScope, first.Payment.ID, EditPaymentInput{Montant: ptr(money("250.01"))})
	assert.True(t, apperror.IsCode(err, apperror.CodePaymentCeiling))
	requireInvariants(t, store)

	status, err := payments.DeletePayment(ctx, testScope, first.Payment.ID)
	require.NoError(t, err)
	assert.True(t, status.TotalPaid.IsZero())
	assert.True(t, status.Remainder.Equal(money("250")))
}

func TestPaymentService_SplitPayments(t *testing.T) {
	ctx := context.Background()
	svc, payments, store, _ := newTestPayments()

	mustCreate(t, svc, "2025-01-01", "entree", 10, 1, "Riz")
	sale := mustCreate(t, svc, "2025-01-02", "sortie", 1, 100, "Riz")

	for _, amount := range []string{"33.33", "33.33", "33.34"} {
		_, err := payments.RecordPayment(ctx, testScope, RecordPaymentInput{
			MovementID: sale.Movement.ID, Date: "2025-01-05", Montant: money(amount),
		})
		require.NoError(t, err)
	}

	status, err := payments.PaymentStatus(ctx, testScope, sale.Movement.ID)
	require.NoError(t, err)
	assert.True(t, status.TotalPaid.Equal(money("100")))
	assert.True(t, status.Remainder.IsZero())

	_, err = payments.RecordPayment(ctx, testScope, RecordPaymentInput{
		MovementID: sale.Movement.ID, Date: "2025-01-05", Montant: money("0.01"),
	})
	assert.True(t, apperror.IsCode(err, apperror.CodePaymentCeiling))
	requireInvariants(t, store)
}

func TestPaymentService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, payments, _, _ := newTestPayments()
	mv := mustCreate(t, svc, "2025-01-01", "entree", 1, 100, "Riz")

	tests := []struct {
		name string
		in   RecordPaymentInput
	}{
		{"zero", RecordPaymentInput{MovementID: mv.Movement.ID, Date: "2025-01-01", Montant: money("0")}},
		{"negative", RecordPaymentInput{MovementID: mv.Movement.ID, Date: "2025-01-01", Montant: money("-5")}},
		{"three decimals", RecordPaymentInput{MovementID: mv.Movement.ID, Date: "2025-01-01", Montant: money("1.005")}},
		{"bad date", RecordPaymentInput{MovementID: mv.Movement.ID, Date: "31/02/2025", Montant: money("1")}},
		{"no movement", RecordPaymentInput{Date: "2025-01-01", Montant: money("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payments.RecordPayment(ctx, testScope, tt.in)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "got %v", err)
		})
	}

	_, err := payments.RecordPayment(ctx, testScope, RecordPaymentInput{MovementID: id.New(), Date: "2025-01-01", Montant: money("1")})
	assert.True(t, apperror.IsNotFound(err))

	_, err = payments.RecordPayment(ctx, tenant.Scope{UserID: "intruder"}, RecordPaymentInput{
		MovementID: mv.Movement.ID, Date: "2025-01-01", Montant: money("1"),
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestPaymentService_MovementEditsRespectPayments(t *testing.T) {
	ctx := context.Background()
	svc, payments, store, notifier := newTestPayments()

	mv := mustCreate(t, svc, "2025-01-01", "entree", 10, 25, "Riz")
	p, err := payments.RecordPayment(ctx, testScope, RecordPaymentInput{
		MovementID: mv.Movement.ID, Date: "2025-01-03", Montant: money("200.50"),
	}, WaitReplication())
	require.NoError(t, err)
	assert.Equal(t, []Change{{Entity: EntityPayment, ID: p.Payment.ID.String(), Op: OpUpsert}}, notifier.last())

	// 10 x 20 = 200 < 200.50 already paid.
	_, err = svc.EditMovement(ctx, testScope, mv.Movement.ID, EditMovementInput{Prix: ptr(int64(20))})
	assert.True(t, apperror.IsCode(err, apperror.CodePaymentCeiling))

	_, err = svc.EditMovement(ctx, testScope, mv.Movement.ID, EditMovementInput{Prix: ptr(int64(21))})
	require.NoError(t, err)
	requireInvariants(t, store)

	list, err := payments.ListPayments(ctx, testScope, mv.Movement.ID)
	require.NoError(t, err)
	require.Len(t, list.Payments, 1)
	assert.True(t, list.Status.Remainder.Equal(money("9.50")))

	// Deleting the movement drops its payments and replicates the deletes.
	_, err = svc.DeleteMovement(ctx, testScope, mv.Movement.ID)
	require.NoError(t, err)
	assert.Empty(t, store.payments)
	assert.Contains(t, notifier.last(), Change{Entity: EntityPayment, ID: p.Payment.ID.String(), Op: OpDelete})

	_, err = payments.PaymentStatus(ctx, testScope, mv.Movement.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestPaymentService_CompanyColleagueWithoutMovements(t *testing.T) {
	ctx := context.Background()
	svc, payments, store, _ := newTestPayments()
	alice := tenant.Scope{UserID: "alice", CompanyCode: "ACME"}
	bob := tenant.Scope{UserID: "bob", CompanyCode: "ACME"}

	_, err := svc.CreateMovement(ctx, alice, CreateMovementInput{
		Date: "2025-01-01", Type: "entree", Quantite: 10, Prix: 10,
		Designation: Ref{Name: "Riz"}, Client: Ref{Name: "Fatou"},
	})
	require.NoError(t, err)
	mv, err := svc.CreateMovement(ctx, alice, CreateMovementInput{
		Date: "2025-01-02", Type: "sortie", Quantite: 2, Prix: 50,
		Designation: Ref{Name: "Riz"}, Client: Ref{Name: "Fatou"},
	})
	require.NoError(t, err)
	require.NotContains(t, store.owners, bob.UserID)

	// Bob has never created a movement in ACME.
	paid, err := payments.RecordPayment(ctx, bob, RecordPaymentInput{
		MovementID: mv.Movement.ID, Date: "2025-01-03", Montant: money("40"),
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", paid.Payment.OwnerID)
	assert.Contains(t, store.owners, bob.UserID)

	_, err = payments.EditPayment(ctx, bob, paid.Payment.ID, EditPaymentInput{Montant: ptr(money("60"))})
	require.NoError(t, err)

	carol := tenant.Scope{UserID: "carol", CompanyCode: "ACME"}
	edited, err := svc.EditMovement(ctx, carol, mv.Movement.ID, EditMovementInput{Client: &Ref{Name: "Moussa"}})
	require.NoError(t, err)
	assert.Contains(t, store.owners, carol.UserID)
	assert.Equal(t, "carol", store.clients[edited.Movement.ClientID].OwnerID)
	requireInvariants(t, store)
}
