package ledger

import (
	"math"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Accepted date layouts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	time.RFC3339,
}

var typeSynonyms = map[string]MovementType{
	"entree":   Entree,
	"entry":    Entree,
	"in":       Entree,
	"achat":    Entree,
	"purchase": Entree,
	"+":        Entree,
	"sortie":   Sortie,
	"exit":     Sortie,
	"out":      Sortie,
	"vente":    Sortie,
	"sale":     Sortie,
	"-":        Sortie,
}

// Ref points at a designation or client either by id or by name.
// A name is resolved case-insensitively and created on first use.
type Ref struct {
	ID   *id.ID `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (r Ref) validate(field string) error {
	if r.ID != nil && !id.IsNil(*r.ID) {
		return nil
	}
	if normalizeName(r.Name) == "" {
		return apperror.NewInvalidField(field, field+" is required")
	}
	return nil
}

// CreateMovementInput is the payload of CreateMovement.
type CreateMovementInput struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Quantite    int64  `json:"quantite"`
	Prix        int64  `json:"prix"`
	Designation Ref    `json:"designation"`
	Client      Ref    `json:"client"`
}

// EditMovementInput carries the fields to change. Nil fields keep their value.
type EditMovementInput struct {
	Date        *string `json:"date,omitempty"`
	Type        *string `json:"type,omitempty"`
	Quantite    *int64  `json:"quantite,omitempty"`
	Prix        *int64  `json:"prix,omitempty"`
	Designation *Ref    `json:"designation,omitempty"`
	Client      *Ref    `json:"client,omitempty"`
}

// RecordPaymentInput is the payload of RecordPayment.
type RecordPaymentInput struct {
	MovementID id.ID       `json:"movementId"`
	Date       string      `json:"date"`
	Montant    types.Money `json:"montant"`
}

// EditPaymentInput carries the payment fields to change.
type EditPaymentInput struct {
	Date    *string      `json:"date,omitempty"`
	Montant *types.Money `json:"montant,omitempty"`
}

// draft is a validated movement payload.
type draft struct {
	date     time.Time
	typ      MovementType
	quantite int64
	prix     int64
}

func (in CreateMovementInput) validate() (draft, error) {
	var d draft
	var err error
	if d.date, err = ParseDate(in.Date); err != nil {
		return d, err
	}
	if d.typ, err = ParseType(in.Type); err != nil {
		return d, err
	}
	if err = validateQuantite(in.Quantite); err != nil {
		return d, err
	}
	if err = validatePrix(in.Prix); err != nil {
		return d, err
	}
	d.quantite, d.prix = in.Quantite, in.Prix
	if err = validateMontant(d.quantite, d.prix); err != nil {
		return d, err
	}
	if err = in.Designation.validate("designation"); err != nil {
		return d, err
	}
	if err = in.Client.validate("client"); err != nil {
		return d, err
	}
	return d, nil
}

// apply validates the edit against the current row and returns the merged draft.
func (in EditMovementInput) apply(cur Movement) (draft, error) {
	d := draft{date: cur.Date, typ: cur.Type, quantite: cur.Quantite, prix: cur.Prix}
	var err error
	if in.Date != nil {
		if d.date, err = ParseDate(*in.Date); err != nil {
			return d, err
		}
	}
	if in.Type != nil {
		if d.typ, err = ParseType(*in.Type); err != nil {
			return d, err
		}
	}
	if in.Quantite != nil {
		if err = validateQuantite(*in.Quantite); err != nil {
			return d, err
		}
		d.quantite = *in.Quantite
	}
	if in.Prix != nil {
		if err = validatePrix(*in.Prix); err != nil {
			return d, err
		}
		d.prix = *in.Prix
	}
	if err = validateMontant(d.quantite, d.prix); err != nil {
		return d, err
	}
	if in.Designation != nil {
		if err = in.Designation.validate("designation"); err != nil {
			return d, err
		}
	}
	if in.Client != nil {
		if err = in.Client.validate("client"); err != nil {
			return d, err
		}
	}
	return d, nil
}

// ParseDate accepts ISO (2006-01-02), day-first (02/01/2006) and RFC 3339 dates.
// Impossible calendar dates such as 2025-02-30 are rejected.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperror.NewInvalidField("date", "date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, apperror.NewInvalidField("date", "date is not a valid calendar date").
		WithDetail("value", s)
}

// ParseType maps a movement type or one of its synonyms to Entree or Sortie.
// Matching ignores case, surrounding spaces and diacritics.
func ParseType(s string) (MovementType, error) {
	key := strings.ToLower(stripDiacritics(strings.TrimSpace(s)))
	if t, ok := typeSynonyms[key]; ok {
		return t, nil
	}
	return "", apperror.NewInvalidField("type", "type must be entree or sortie").
		WithDetail("value", s)
}

func validateQuantite(q int64) error {
	if q <= 0 {
		return apperror.NewInvalidField("quantite", "quantite must be positive").WithDetail("value", q)
	}
	return nil
}

func validatePrix(p int64) error {
	if p < 0 {
		return apperror.NewInvalidField("prix", "prix must not be negative").WithDetail("value", p)
	}
	return nil
}

func validatePaymentAmount(m types.Money) error {
	if !m.IsPositive() {
		return apperror.NewInvalidField("montant", "montant must be positive").WithDetail("value", m.String())
	}
	if !m.Equal(types.RoundMoney(m)) {
		return apperror.NewInvalidField("montant", "montant has more than two decimals").WithDetail("value", m.String())
	}
	return nil
}

// normalizeName collapses inner whitespace and trims the ends.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// validateMontant rejects a quantite and prix whose product does not fit the montant column.
func validateMontant(q, p int64) error {
	if p > 0 && q > math.MaxInt64/p {
		return apperror.NewInvalidField("prix", "quantite times prix is too large").
			WithDetail("quantite", q).
			WithDetail("prix", p)
	}
	return nil
}
