package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/parcelops/backend/pkg/db/models"
	pkgerrors "github.com/parcelops/backend/pkg/errors"
)

// Demand is one (product, quantity) pair an order needs satisfied.
type Demand struct {
	ProductID uuid.UUID
	Quantity  int
}

// LineAllocation reports how one demand fared.
type LineAllocation struct {
	ProductID uuid.UUID       `json:"product_id"`
	Requested int             `json:"requested"`
	Allocated int             `json:"allocated"`
	Cost      decimal.Decimal `json:"cost"`
	Fulfilled bool            `json:"fulfilled"`
}

// OrderAllocation is the outcome of allocating one order. Fulfilled is false
// whenever any demand could only be partially covered; the partial allocation
// is kept, not rolled back, and the caller decides what to do with the order.
type OrderAllocation struct {
	OrderID   uuid.UUID        `json:"order_id"`
	Requested int              `json:"requested"`
	Allocated int              `json:"allocated"`
	TotalCost decimal.Decimal  `json:"total_cost"`
	Fulfilled bool             `json:"fulfilled"`
	Lines     []LineAllocation `json:"lines"`
}

// allocateDemand walks the product's batches oldest-first, deducting from each
// until the demand is covered or stock runs out. Every deduction is a guarded
// update; a guard miss means another writer emptied the batch between our read
// and our write, so the batch is simply skipped.
func (s *service) allocateDemand(ctx context.Context, repo Repository, orderID uuid.UUID, demand Demand) (LineAllocation, []models.AllocationLineItem, error) {
	line := LineAllocation{
		ProductID: demand.ProductID,
		Requested: demand.Quantity,
		Cost:      decimal.Zero,
	}

	if _, err := repo.FindProduct(ctx, demand.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return line, nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return line, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	batches, err := repo.AvailableBatches(ctx, demand.ProductID)
	if err != nil {
		return line, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batches")
	}

	stillNeeded := demand.Quantity
	var items []models.AllocationLineItem

	for _, batch := range batches {
		if stillNeeded == 0 {
			break
		}
		take := batch.RemainingQuantity
		if take > stillNeeded {
			take = stillNeeded
		}

		ok, err := repo.DeductBatch(ctx, batch.ID, take)
		if err != nil {
			return line, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct batch")
		}
		if !ok {
			continue
		}

		items = append(items, models.AllocationLineItem{
			OrderID:   orderID,
			ProductID: demand.ProductID,
			BatchID:   batch.ID,
			Quantity:  take,
			UnitCost:  batch.UnitCost,
		})
		line.Cost = line.Cost.Add(batch.UnitCost.Mul(decimal.NewFromInt(int64(take))))
		line.Allocated += take
		stillNeeded -= take
	}

	line.Fulfilled = stillNeeded == 0

	if line.Allocated > 0 {
		// Keep the cache in lockstep with actual depletion: decrement by what
		// was allocated, not what was requested.
		if _, err := repo.AdjustProductStock(ctx, demand.ProductID, -line.Allocated); err != nil {
			return line, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust product stock")
		}
	}

	return line, items, nil
}
