// Package ledger implements the per-designation movement chain: the directory
// of designations and clients, movement CRUD with running-balance
// maintenance, and payments held against movements.
package ledger

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType is the direction of a stock movement.
type MovementType string

const (
	Entree MovementType = "entree"
	Sortie MovementType = "sortie"
)

// Sign is +1 for entree and -1 for sortie.
func (t MovementType) Sign() int64 {
	if t == Sortie {
		return -1
	}
	return 1
}

// Owner is the user a scope belongs to. Materialized so the mirror can
// satisfy its foreign keys.
type Owner struct {
	ID          string    `db:"id" json:"id"`
	ScopeKey    string    `db:"scope_key" json:"-"`
	CompanyCode string    `db:"company_code" json:"companyCode,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Designation is a tracked product. CurrentStock caches the balance of its chain.
type Designation struct {
	ID           id.ID     `db:"id" json:"id"`
	ScopeKey     string    `db:"scope_key" json:"-"`
	OwnerID      string    `db:"owner_id" json:"ownerId"`
	Name         string    `db:"name" json:"name"`
	CurrentStock int64     `db:"current_stock" json:"currentStock"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Client is the counterparty of a movement.
type Client struct {
	ID        id.ID     `db:"id" json:"id"`
	ScopeKey  string    `db:"scope_key" json:"-"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Movement is one entry of a designation's chain.
// Stock is the balance immediately before the movement and StockAfter the balance after it.
type Movement struct {
	ID            id.ID        `db:"id" json:"id"`
	ScopeKey      string       `db:"scope_key" json:"-"`
	OwnerID       string       `db:"owner_id" json:"ownerId"`
	DesignationID id.ID        `db:"designation_id" json:"designationId"`
	ClientID      id.ID        `db:"client_id" json:"clientId"`
	Date          time.Time    `db:"mov_date" json:"date"`
	Type          MovementType `db:"mov_type" json:"type"`
	Quantite      int64        `db:"quantite" json:"quantite"`
	Prix          int64        `db:"prix" json:"prix"`
	Montant       int64        `db:"montant" json:"montant"`
	Stock         int64        `db:"stock" json:"stock"`
	StockAfter    int64        `db:"stock_after" json:"stockR"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`
}

// Delta is the signed quantity the movement contributes to its chain.
func (m Movement) Delta() int64 {
	return m.Type.Sign() * m.Quantite
}

// Position returns the chain ordering key.
func (m Movement) Position() Position {
	return Position{Date: m.Date, ID: m.ID}
}

// Total returns montant as Money for payment comparisons.
func (m Movement) Total() types.Money {
	return types.MoneyFromInt(m.Montant)
}

// Position orders movements within a chain: date first, id breaks ties.
type Position struct {
	Date time.Time
	ID   id.ID
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if !p.Date.Equal(o.Date) {
		return p.Date.Before(o.Date)
	}
	return id.Compare(p.ID, o.ID) < 0
}

// Payment is a partial settlement of a movement's montant.
type Payment struct {
	ID         id.ID       `db:"id" json:"id"`
	ScopeKey   string      `db:"scope_key" json:"-"`
	OwnerID    string      `db:"owner_id" json:"ownerId"`
	MovementID id.ID       `db:"movement_id" json:"movementId"`
	Date       time.Time   `db:"pay_date" json:"date"`
	Montant    types.Money `db:"montant" json:"montant"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
}

// PaymentStatus summarizes payments held against one movement.
type PaymentStatus struct {
	MovementID id.ID       `json:"movementId"`
	Montant    types.Money `json:"montant"`
	TotalPaid  types.Money `json:"totalPaid"`
	Remainder  types.Money `json:"remainder"`
}

func newPaymentStatus(m *Movement, paid types.Money) PaymentStatus {
	return PaymentStatus{
		MovementID: m.ID,
		Montant:    m.Total(),
		TotalPaid:  paid,
		Remainder:  types.Remainder(m.Total(), paid),
	}
}

// dateOnly truncates t to a UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
