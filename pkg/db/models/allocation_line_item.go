package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationLineItem is the ledger row recording that an order consumed
// Quantity units of a product from one specific batch at that batch's unit
// cost. Rows are created atomically with the batch decrements and deleted
// atomically with the batch increments on reversal; summing Quantity by order
// reconstructs the order's allocated total, and summing by batch reconstructs
// what reversal must give back.
type AllocationLineItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	BatchID   uuid.UUID       `gorm:"column:batch_id;type:uuid;not null;index"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitCost  decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,4);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Cost returns the extended cost of this line.
func (l AllocationLineItem) Cost() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
