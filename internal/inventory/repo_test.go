package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelops/backend/pkg/enums"
)

func TestRepositoryDeductBatchGuard(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	productID := seedProduct(t, conn, "Mug", 10)
	batchID := seedBatch(t, conn, productID, 1, 10, "2.00", time.Now().UTC())

	ok, err := repo.DeductBatch(ctx, batchID, 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, loadBatch(t, conn, batchID).RemainingQuantity)

	ok, err = repo.DeductBatch(ctx, batchID, 5)
	require.NoError(t, err)
	assert.False(t, ok, "deduct beyond remaining must not apply")
	assert.Equal(t, 4, loadBatch(t, conn, batchID).RemainingQuantity)

	ok, err = repo.DeductBatch(ctx, uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryRestoreBatchGuard(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	productID := seedProduct(t, conn, "Mug", 10)
	batchID := seedBatch(t, conn, productID, 1, 10, "2.00", time.Now().UTC())

	ok, err := repo.DeductBatch(ctx, batchID, 7)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.RestoreBatch(ctx, batchID, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, loadBatch(t, conn, batchID).RemainingQuantity)

	ok, err = repo.RestoreBatch(ctx, batchID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "restore past quantity_received must not apply")
	assert.Equal(t, 10, loadBatch(t, conn, batchID).RemainingQuantity)
}

func TestRepositoryAvailableBatchesFIFOOrder(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	productID := seedProduct(t, conn, "Mug", 30)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	newer := seedBatch(t, conn, productID, 3, 10, "4.00", base.Add(time.Hour))
	tieSecond := seedBatch(t, conn, productID, 2, 10, "3.00", base)
	tieFirst := seedBatch(t, conn, productID, 1, 10, "2.00", base)
	depleted := seedBatch(t, conn, productID, 4, 5, "5.00", base.Add(-time.Hour))

	ok, err := repo.DeductBatch(ctx, depleted, 5)
	require.NoError(t, err)
	require.True(t, ok)

	batches, err := repo.AvailableBatches(ctx, productID)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, tieFirst, batches[0].ID, "same received_at breaks ties by seq")
	assert.Equal(t, tieSecond, batches[1].ID)
	assert.Equal(t, newer, batches[2].ID)
}

func TestRepositoryTransitionStockStateCAS(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	orderID := seedOrder(t, conn, enums.StockStateUnallocated)

	ok, err := repo.TransitionStockState(ctx, orderID, enums.StockStateUnallocated, enums.StockStateAllocated)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TransitionStockState(ctx, orderID, enums.StockStateUnallocated, enums.StockStateAllocated)
	require.NoError(t, err)
	assert.False(t, ok, "state already moved; transition must miss")

	assert.Equal(t, enums.StockStateAllocated, loadOrder(t, conn, orderID).StockState)
}

func TestRepositoryAdjustProductStockClampsAtZero(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	productID := seedProduct(t, conn, "Mug", 3)

	ok, err := repo.AdjustProductStock(ctx, productID, -5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, loadProduct(t, conn, productID).CurrentStock)

	ok, err = repo.AdjustProductStock(ctx, productID, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, loadProduct(t, conn, productID).CurrentStock)
}
