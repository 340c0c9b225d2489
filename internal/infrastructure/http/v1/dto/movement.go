package dto

import (
	"stockledger/internal/domain/ledger"
)

// RefRequest names a designation or client by id or by name.
type RefRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r RefRequest) toRef(field string) (ledger.Ref, error) {
	v, err := parseOptionalID(field+".id", r.ID)
	if err != nil {
		return ledger.Ref{}, err
	}
	return ledger.Ref{ID: v, Name: r.Name}, nil
}

// CreateMovementRequest is the body of POST /movements.
type CreateMovementRequest struct {
	Date        string     `json:"date" binding:"required"`
	Type        string     `json:"type" binding:"required"`
	Quantite    int64      `json:"quantite"`
	Prix        int64      `json:"prix"`
	Designation RefRequest `json:"designation"`
	Client      RefRequest `json:"client"`
}

// ToInput converts the request to the ledger input.
func (r CreateMovementRequest) ToInput() (ledger.CreateMovementInput, error) {
	des, err := r.Designation.toRef("designation")
	if err != nil {
		return ledger.CreateMovementInput{}, err
	}
	cli, err := r.Client.toRef("client")
	if err != nil {
		return ledger.CreateMovementInput{}, err
	}
	return ledger.CreateMovementInput{
		Date:        r.Date,
		Type:        r.Type,
		Quantite:    r.Quantite,
		Prix:        r.Prix,
		Designation: des,
		Client:      cli,
	}, nil
}

// EditMovementRequest is the body of PATCH /movements/:id. Absent fields are kept.
type EditMovementRequest struct {
	Date        *string     `json:"date"`
	Type        *string     `json:"type"`
	Quantite    *int64      `json:"quantite"`
	Prix        *int64      `json:"prix"`
	Designation *RefRequest `json:"designation"`
	Client      *RefRequest `json:"client"`
}

// ToInput converts the request to the ledger input.
func (r EditMovementRequest) ToInput() (ledger.EditMovementInput, error) {
	in := ledger.EditMovementInput{
		Date:     r.Date,
		Type:     r.Type,
		Quantite: r.Quantite,
		Prix:     r.Prix,
	}
	if r.Designation != nil {
		ref, err := r.Designation.toRef("designation")
		if err != nil {
			return in, err
		}
		in.Designation = &ref
	}
	if r.Client != nil {
		ref, err := r.Client.toRef("client")
		if err != nil {
			return in, err
		}
		in.Client = &ref
	}
	return in, nil
}
