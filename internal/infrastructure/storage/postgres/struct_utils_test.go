package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/cashflow"
	"stockledger/internal/domain/ledger"
)

type Stamped struct {
	CreatedAt time.Time `db:"created_at"`
}

type withEmbedded struct {
	Stamped
	Name  string `db:"name"`
	Skip  string `db:"-"`
	Plain string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[ledger.Movement]()
	require.NotEmpty(t, cols)
	assert.Equal(t, "id", cols[0])
	assert.Contains(t, cols, "stock_after")
	assert.Contains(t, cols, "mov_date")

	assert.Equal(t, []string{"created_at", "name"}, ExtractDBColumns[withEmbedded]())

	// Computed report fields carry db:"-".
	assert.NotContains(t, ExtractDBColumns[cashflow.Row](), "running")
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	p := ledger.Payment{
		ID:         id.New(),
		ScopeKey:   "u:1",
		OwnerID:    "1",
		MovementID: id.New(),
		Date:       now,
		Montant:    types.MustMoney("12.50"),
	}

	m := StructToMap(&p)

	assert.Equal(t, p.ID, m["id"])
	assert.Equal(t, "u:1", m["scope_key"])
	assert.Equal(t, now, m["pay_date"])
	assert.Equal(t, p.Montant, m["montant"])

	e := StructToMap(withEmbedded{Stamped: Stamped{CreatedAt: now}, Name: "x", Skip: "y"})
	assert.Equal(t, map[string]any{"created_at": now, "name": "x"}, e)
	assert.Nil(t, StructToMap(42))
}

func TestColumnHelpers(t *testing.T) {
	cols := []string{"id", "name", "created_at"}

	assert.Equal(t, []string{"name"}, Without(cols, "id", "created_at"))
	assert.Equal(t, []string{"d.id", "d.name", "d.created_at"}, Qualify("d", cols))
	assert.Equal(t,
		"ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, created_at = EXCLUDED.created_at",
		UpsertSuffix("id", cols),
	)
	assert.Equal(t, map[string]any{"id": 1}, Pick(map[string]any{"id": 1, "x": 2}, []string{"id", "y"}))
}
