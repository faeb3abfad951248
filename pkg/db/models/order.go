package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parcelops/backend/pkg/enums"
)

// Order carries the fields the allocation core touches. ProvisionalCost is set
// when allocation runs; FinalCost is copied from it exactly once on the first
// delivered transition and never recalculated afterward, so delivered-order
// profitability is immune to later catalog or batch edits.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Description     string            `gorm:"column:description;not null"`
	TrackingNumber  *string           `gorm:"column:tracking_number"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	StockState      enums.StockState  `gorm:"column:stock_state;not null;default:'unallocated'"`
	ProvisionalCost *decimal.Decimal  `gorm:"column:provisional_cost;type:numeric(14,4)"`
	FinalCost       *decimal.Decimal  `gorm:"column:final_cost;type:numeric(14,4)"`
	DeliveredAt     *time.Time        `gorm:"column:delivered_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// ReturnReceived reports whether the order's items have physically come back.
func (o Order) ReturnReceived() bool {
	return o.StockState == enums.StockStateReturned
}

// CostFinalized reports whether the frozen cost has been recorded.
func (o Order) CostFinalized() bool {
	return o.FinalCost != nil
}
