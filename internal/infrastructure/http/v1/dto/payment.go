package dto

import (
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// RecordPaymentRequest is the body of POST /payments.
// Montant is a decimal string such as "33.33".
type RecordPaymentRequest struct {
	MovementID string `json:"movementId" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Montant    string `json:"montant" binding:"required"`
}

// ToInput converts the request to the ledger input.
func (r RecordPaymentRequest) ToInput() (ledger.RecordPaymentInput, error) {
	movementID, err := id.Parse(r.MovementID)
	if err != nil {
		return ledger.RecordPaymentInput{}, apperror.NewInvalidField("movementId", "invalid movementId format")
	}
	montant, err := parseMoney(r.Montant)
	if err != nil {
		return ledger.RecordPaymentInput{}, err
	}
	return ledger.RecordPaymentInput{MovementID: movementID, Date: r.Date, Montant: montant}, nil
}

// EditPaymentRequest is the body of PATCH /payments/:id.
type EditPaymentRequest struct {
	Date    *string `json:"date"`
	Montant *string `json:"montant"`
}

// ToInput converts the request to the ledger input.
func (r EditPaymentRequest) ToInput() (ledger.EditPaymentInput, error) {
	in := ledger.EditPaymentInput{Date: r.Date}
	if r.Montant != nil {
		m, err := parseMoney(*r.Montant)
		if err != nil {
			return in, err
		}
		in.Montant = &m
	}
	return in, nil
}

func parseMoney(s string) (types.Money, error) {
	m, err := types.NewMoneyFromString(s)
	if err != nil {
		return types.Zero(), apperror.NewInvalidField("montant", "montant must be a decimal number")
	}
	return m, nil
}
