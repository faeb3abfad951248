package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. CurrentStock is a denormalized cache of the sum
// of remaining quantities across the product's batches; allocation and reversal
// maintain it in lockstep and ReconcileStock repairs drift. Allocation decisions
// always read the batch rows, never this cache.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null;uniqueIndex:idx_products_name"`
	CurrentStock int             `gorm:"column:current_stock;not null;default:0"`
	DefaultCOGS  decimal.Decimal `gorm:"column:default_cogs;type:numeric(12,4);not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
