// Package cashflow merges movements, payments and expenses into one dated
// feed with a running cash balance and a daily cash-position summary.
package cashflow

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Kind classifies a feed row.
type Kind string

const (
	KindEntree   Kind = "entree"   // stock in, no cash effect
	KindSortie   Kind = "sortie"   // stock out, no cash effect
	KindAchat    Kind = "achat"    // payment against an entree, cash out
	KindPaiement Kind = "paiement" // payment against a sortie, cash in
	KindDepense  Kind = "depense"  // expense, cash out
)

// Contribution is the signed cash effect of a row of kind k and amount montant.
func Contribution(k Kind, montant types.Money) types.Money {
	switch k {
	case KindPaiement:
		return montant
	case KindAchat, KindDepense:
		return montant.Neg()
	default:
		return types.Zero()
	}
}

// Row is one entry of the feed.
type Row struct {
	ID           id.ID       `db:"id" json:"id"`
	Date         time.Time   `db:"row_date" json:"date"`
	Kind         Kind        `db:"kind" json:"kind"`
	Designation  string      `db:"designation" json:"designation,omitempty"`
	Client       string      `db:"client" json:"client,omitempty"`
	Label        string      `db:"label" json:"label,omitempty"`
	MovementID   *id.ID      `db:"movement_id" json:"movementId,omitempty"`
	MovementDate *time.Time  `db:"movement_date" json:"movementDate,omitempty"`
	Quantite     *int64      `db:"quantite" json:"quantite,omitempty"`
	Montant      types.Money `db:"montant" json:"montant"`

	Contribution types.Money `db:"-" json:"contribution"`
	Running      types.Money `db:"-" json:"running"`
}

// Query selects the rows of a report: an inclusive date range or free text.
type Query struct {
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Search string     `json:"search,omitempty"`
}

// IsSearch reports whether the query is free text.
func (q Query) IsSearch() bool {
	return q.Search != ""
}

// Summary is the cash position of one day.
type Summary struct {
	Day           time.Time   `json:"day"`
	Achats        types.Money `json:"achats"`
	Depenses      types.Money `json:"depenses"`
	Encaissements types.Money `json:"encaissements"`
	Recouvrements types.Money `json:"recouvrements"`
	Entrees       types.Money `json:"entrees"`
	Sorties       types.Money `json:"sorties"`
	Opening       types.Money `json:"opening"`
	Closing       types.Money `json:"closing"`
}

// Report is the result of GetCashFlow.
type Report struct {
	Query   Query       `json:"query"`
	Opening types.Money `json:"opening"`
	Closing types.Money `json:"closing"`
	Rows    []Row       `json:"rows"`
	Summary *Summary    `json:"summary,omitempty"`
}
