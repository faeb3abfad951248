package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryBatch is one stock-receipt event and one FIFO cost layer.
// QuantityReceived and UnitCost are immutable after creation; only
// RemainingQuantity moves, and only through allocation (decrement) and
// reversal (increment), which are exact inverses. Batches are never deleted:
// zero-remaining rows stay for cost history.
//
// FIFO order is ReceivedAt ascending with Seq as the tie-break, so two batches
// received at the same instant are consumed in insertion order.
type InventoryBatch struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Seq               int64           `gorm:"column:seq;not null;uniqueIndex:idx_inventory_batches_seq"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	QuantityReceived  int             `gorm:"column:quantity_received;not null"`
	RemainingQuantity int             `gorm:"column:remaining_quantity;not null"`
	UnitCost          decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,4);not null"`
	ReceivedAt        time.Time       `gorm:"column:received_at;not null"`
	Reference         *string         `gorm:"column:reference"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Depleted reports whether the batch has no stock left to allocate.
func (b InventoryBatch) Depleted() bool {
	return b.RemainingQuantity <= 0
}
