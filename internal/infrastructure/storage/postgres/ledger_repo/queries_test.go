package ledger_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tenant"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

var scope = tenant.Scope{UserID: "u1", CompanyCode: "ACME"}

func TestLockDesignationsQuery(t *testing.T) {
	r := New(nil)
	a, b := id.New(), id.New()

	sql, args, err := r.lockDesignationsQuery(scope, []id.ID{a, b}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM designations")
	assert.Contains(t, sql, "id IN ($1,$2)")
	assert.Contains(t, sql, "scope_key = $3")
	assert.Contains(t, sql, "ORDER BY id FOR UPDATE")
	assert.Equal(t, []any{a, b, "c:acme"}, args)
}

func TestSumBeforeQuery(t *testing.T) {
	r := New(nil)
	des, self := id.New(), id.New()
	pos := ledger.Position{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), ID: id.New()}

	sql, args, err := r.sumBeforeQuery(des, pos, self).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "CASE WHEN mov_type = 'sortie' THEN -quantite ELSE quantite END")
	assert.Contains(t, sql, "designation_id = $1")
	assert.Contains(t, sql, "(mov_date, id) < ($2, $3)")
	assert.Contains(t, sql, "id <> $4")
	require.Len(t, args, 4)
	assert.Equal(t, pos.Date, args[1])
	assert.Equal(t, pos.ID, args[2])
}

func TestShiftAfterQuery(t *testing.T) {
	r := New(nil)
	pos := ledger.Position{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), ID: id.New()}

	sql, args, err := r.shiftAfterQuery(id.New(), pos, -4).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE movements SET stock = stock + $1, stock_after = stock_after + $2")
	assert.Contains(t, sql, "(mov_date, id) > ($4, $5)")
	assert.Contains(t, sql, "RETURNING id, scope_key, owner_id, designation_id")
	assert.Equal(t, int64(-4), args[0])
	assert.Equal(t, int64(-4), args[1])
}

func TestByNameQuery(t *testing.T) {
	r := New(nil)

	sql, args, err := r.byNameQuery(postgres.TableClients, clientCols, scope, "Fatou").ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM clients")
	assert.Contains(t, sql, "lower(name) = lower($2)")
	assert.Contains(t, sql, "LIMIT 1")
	assert.Equal(t, []any{"c:acme", "Fatou"}, args)
}

func TestMutableMovementColumns(t *testing.T) {
	assert.NotContains(t, mutableMovementCols, "id")
	assert.NotContains(t, mutableMovementCols, "scope_key")
	assert.NotContains(t, mutableMovementCols, "created_at")
	assert.Contains(t, mutableMovementCols, "designation_id")
	assert.Contains(t, mutableMovementCols, "stock_after")
	assert.Contains(t, mutableMovementCols, "updated_at")
}

func TestRestateQuery(t *testing.T) {
	r := New(nil)
	m := &ledger.Movement{ID: id.New(), Stock: 4, StockAfter: 1}

	sql, args, err := r.restateQuery(m).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE movements SET stock = $1, stock_after = $2 WHERE id = $3", sql)
	assert.Equal(t, []any{int64(4), int64(1), m.ID.String()}, args)
}
