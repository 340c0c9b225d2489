package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// BatchExecutor sends many statements in one round trip on the ctx transaction.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// BuildBatch renders squirrel statements into a pgx batch.
func BuildBatch(queries []squirrel.Sqlizer) (*pgx.Batch, error) {
	batch := &pgx.Batch{}
	for i, q := range queries {
		sql, args, err := q.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build batch query %d: %w", i, err)
		}
		batch.Queue(sql, args...)
	}
	return batch, nil
}

// ExecuteBatch executes queries in order and returns the rows affected by each.
// It requires a transaction in ctx so a failing statement rolls back the whole batch.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, queries []squirrel.Sqlizer) ([]int64, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	tx := e.txManager.GetTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("ExecuteBatch requires transaction context")
	}

	batch, err := BuildBatch(queries)
	if err != nil {
		return nil, err
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	affected := make([]int64, len(queries))
	for i := range queries {
		tag, err := results.Exec()
		if err != nil {
			return nil, fmt.Errorf("batch query %d failed: %w", i, err)
		}
		affected[i] = tag.RowsAffected()
	}
	return affected, nil
}
