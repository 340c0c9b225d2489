package mirror_repo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

func TestUpsertQuery(t *testing.T) {
	p := &ledger.Payment{
		ID:         id.New(),
		ScopeKey:   "u:u1",
		OwnerID:    "u1",
		MovementID: id.New(),
		Montant:    types.MustMoney("33.33"),
	}

	q, err := New(nil).upsertQuery(ledger.EntityPayment, p)
	require.NoError(t, err)
	text, args, err := q.ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "INSERT INTO payments (id,scope_key,owner_id,movement_id,pay_date,montant,created_at) VALUES"))
	assert.Contains(t, text, "ON CONFLICT (id) DO UPDATE SET scope_key = EXCLUDED.scope_key")
	assert.Contains(t, text, "montant = EXCLUDED.montant")
	require.Len(t, args, 7)
	assert.Equal(t, p.ID, args[0])
	assert.Equal(t, p.Montant, args[5])
}

func TestKeysQuery(t *testing.T) {
	q, err := New(nil).keysQuery("c:acme", ledger.EntityMovement)
	require.NoError(t, err)
	text, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT id::text FROM movements WHERE scope_key = $1 ORDER BY id", text)
	assert.Equal(t, []any{"c:acme"}, args)
}

func TestUnknownEntity(t *testing.T) {
	_, err := New(nil).keysQuery("u:1", ledger.Entity("expense"))
	assert.Error(t, err)
}
