package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/enums"
	pkgerrors "github.com/parcelops/backend/pkg/errors"
	"github.com/parcelops/backend/pkg/logger"
	"github.com/parcelops/backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the FIFO allocation core: it assigns order demand to the oldest
// batches, keeps the durable ledger that makes reversal exact, and maintains
// the product stock cache in lockstep.
type Service interface {
	Allocate(ctx context.Context, productID, orderID uuid.UUID, quantity int) (*OrderAllocation, error)
	AllocateOrder(ctx context.Context, orderID uuid.UUID, demands []Demand) (*OrderAllocation, error)
	AllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, demands []Demand) (*OrderAllocation, error)
	Reverse(ctx context.Context, orderID uuid.UUID) (*ReversalResult, error)
	ReverseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*ReversalResult, error)
	SetReturnReceived(ctx context.Context, orderID uuid.UUID, received bool) (*ReturnToggleResult, error)
	BatchesForProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryBatch, error)
	LineItemsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AllocationLineItem, error)
	CostSummary(ctx context.Context) ([]ProductCostSummary, error)
	ReconcileStock(ctx context.Context) (*ReconcileReport, error)
}

// ReversalResult reports what a reversal gave back.
type ReversalResult struct {
	OrderID          uuid.UUID `json:"order_id"`
	RestoredQuantity int       `json:"restored_quantity"`
	SkippedItems     int       `json:"skipped_items"`
}

// ReturnToggleResult reports the effect of a return-received toggle.
type ReturnToggleResult struct {
	OrderID       uuid.UUID `json:"order_id"`
	Changed       bool      `json:"changed"`
	MovedQuantity int       `json:"moved_quantity"`
	SkippedItems  int       `json:"skipped_items"`
}

// ProductCostSummary is the read-only dashboard aggregate for one product.
type ProductCostSummary struct {
	ProductID        uuid.UUID       `json:"product_id"`
	Name             string          `json:"name"`
	RemainingTotal   int             `json:"remaining_total"`
	ActiveBatchCount int             `json:"active_batch_count"`
	WeightedAvgCost  decimal.Decimal `json:"weighted_avg_cost"`
}

// ReconcileReport summarizes a stock-cache repair pass.
type ReconcileReport struct {
	ProductsChecked  int `json:"products_checked"`
	ProductsRepaired int `json:"products_repaired"`
}

// ServiceParams configure the inventory service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.InventoryMetrics
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.InventoryMetrics
}

// NewService builds the allocation core with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Allocate satisfies a single (product, quantity) demand for an order.
func (s *service) Allocate(ctx context.Context, productID, orderID uuid.UUID, quantity int) (*OrderAllocation, error) {
	return s.AllocateOrder(ctx, orderID, []Demand{{ProductID: productID, Quantity: quantity}})
}

// AllocateOrder runs the full allocation for an order in one transaction.
func (s *service) AllocateOrder(ctx context.Context, orderID uuid.UUID, demands []Demand) (*OrderAllocation, error) {
	var result *OrderAllocation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.AllocateOrderTx(ctx, tx, orderID, demands)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AllocateOrderTx is the transaction-scoped allocation used by callers that
// compose the allocation with their own writes. The stock-state transition is
// the allocate-once guard: it is checked and set inside the same transaction
// that writes the batches and the ledger, so a concurrent or retried call
// cannot double-deduct.
func (s *service) AllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, demands []Demand) (*OrderAllocation, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if len(demands) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one demand required")
	}
	for _, d := range demands {
		if d.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if d.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}

	repo := s.repo.WithTx(tx)

	moved, err := repo.TransitionStockState(ctx, orderID, enums.StockStateUnallocated, enums.StockStateAllocated)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order for allocation")
	}
	if !moved {
		order, loadErr := repo.FindOrder(ctx, orderID)
		if loadErr != nil {
			if errors.Is(loadErr, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, loadErr, "load order")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order already allocated (stock state %s)", order.StockState))
	}

	result := &OrderAllocation{
		OrderID:   orderID,
		TotalCost: decimal.Zero,
		Fulfilled: true,
	}
	var items []models.AllocationLineItem

	for _, demand := range demands {
		line, lineItems, err := s.allocateDemand(ctx, repo, orderID, demand)
		if err != nil {
			return nil, err
		}
		result.Lines = append(result.Lines, line)
		result.Requested += line.Requested
		result.Allocated += line.Allocated
		result.TotalCost = result.TotalCost.Add(line.Cost)
		if !line.Fulfilled {
			result.Fulfilled = false
		}
		items = append(items, lineItems...)
	}

	if err := repo.CreateLineItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write allocation ledger")
	}
	if err := repo.SetProvisionalCost(ctx, orderID, result.TotalCost); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record provisional cost")
	}

	s.recordAllocation(result)
	return result, nil
}

func (s *service) recordAllocation(result *OrderAllocation) {
	outcome := "fulfilled"
	switch {
	case result.Allocated == 0:
		outcome = "none"
	case !result.Fulfilled:
		outcome = "partial"
	}
	s.metrics.IncAllocation(outcome)
	s.metrics.AddShortfall(result.Requested - result.Allocated)
}

// Reverse undoes an order's allocation: each touched batch gets back exactly
// what the ledger says it gave, the ledger rows are deleted, and the order
// returns to the unallocated state.
func (s *service) Reverse(ctx context.Context, orderID uuid.UUID) (*ReversalResult, error) {
	var result *ReversalResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.ReverseTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		s.metrics.IncReversal("error")
		return nil, err
	}
	s.metrics.IncReversal("ok")
	return result, nil
}

// ReverseTx is the transaction-scoped reversal used by order deletion.
func (s *service) ReverseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*ReversalResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	items, err := repo.LineItemsForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocation ledger")
	}

	result := &ReversalResult{OrderID: orderID}
	if len(items) == 0 {
		// Nothing to reverse; still normalize the state.
		if order.StockState != enums.StockStateUnallocated {
			if _, err := repo.TransitionStockState(ctx, orderID, order.StockState, enums.StockStateUnallocated); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset stock state")
			}
		}
		return result, nil
	}

	// Only give units back to batches when the order currently holds stock.
	// A returned order already restored its batches through the return path;
	// crediting them again would double-count.
	if order.StockState == enums.StockStateAllocated {
		restored, skipped, err := s.restoreFromLedger(ctx, repo, items)
		if err != nil {
			return nil, err
		}
		result.RestoredQuantity = restored
		result.SkippedItems = skipped
	}

	if err := repo.DeleteLineItemsForOrder(ctx, orderID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete allocation ledger")
	}
	if _, err := repo.TransitionStockState(ctx, orderID, order.StockState, enums.StockStateUnallocated); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset stock state")
	}

	return result, nil
}

// restoreFromLedger credits every batch named in the ledger with the summed
// quantity the order drew from it, then credits each product's stock cache.
// Missing rows are skipped and counted, never fatal: one vanished batch must
// not block the rest of the restoration.
func (s *service) restoreFromLedger(ctx context.Context, repo Repository, items []models.AllocationLineItem) (int, int, error) {
	batchTotals, productTotals := groupLedger(items)

	restored := 0
	skipped := 0
	for _, group := range batchTotals {
		ok, err := repo.RestoreBatch(ctx, group.id, group.qty)
		if err != nil {
			return restored, skipped, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore batch")
		}
		if !ok {
			skipped++
			s.warn(ctx, "batch missing or over-full during restore", group.id)
			continue
		}
		restored += group.qty
	}

	for _, group := range productTotals {
		ok, err := repo.AdjustProductStock(ctx, group.id, group.qty)
		if err != nil {
			return restored, skipped, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore product stock")
		}
		if !ok {
			skipped++
			s.warn(ctx, "product missing during restore", group.id)
		}
	}

	return restored, skipped, nil
}

type ledgerGroup struct {
	id  uuid.UUID
	qty int
}

// groupLedger sums line items by batch and by product, preserving first-seen
// order so behavior is deterministic.
func groupLedger(items []models.AllocationLineItem) ([]ledgerGroup, []ledgerGroup) {
	batchIdx := map[uuid.UUID]int{}
	productIdx := map[uuid.UUID]int{}
	var batches, products []ledgerGroup

	for _, item := range items {
		if i, ok := batchIdx[item.BatchID]; ok {
			batches[i].qty += item.Quantity
		} else {
			batchIdx[item.BatchID] = len(batches)
			batches = append(batches, ledgerGroup{id: item.BatchID, qty: item.Quantity})
		}
		if i, ok := productIdx[item.ProductID]; ok {
			products[i].qty += item.Quantity
		} else {
			productIdx[item.ProductID] = len(products)
			products = append(products, ledgerGroup{id: item.ProductID, qty: item.Quantity})
		}
	}
	return batches, products
}

// SetReturnReceived moves physical units between the order's recorded batches
// and the shelf. received=true credits the exact batches the ledger names;
// received=false re-removes the same quantities from the same batches. The
// ledger itself is never touched so cost history survives, and toggling twice
// lands every batch back where it started.
func (s *service) SetReturnReceived(ctx context.Context, orderID uuid.UUID, received bool) (*ReturnToggleResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var result *ReturnToggleResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.toggleReturnTx(ctx, tx, orderID, received)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) toggleReturnTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, received bool) (*ReturnToggleResult, error) {
	repo := s.repo.WithTx(tx)

	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	result := &ReturnToggleResult{OrderID: orderID}

	from, to := enums.StockStateAllocated, enums.StockStateReturned
	if !received {
		from, to = enums.StockStateReturned, enums.StockStateAllocated
	}

	if order.StockState == to {
		// Already in the requested state.
		return result, nil
	}
	if order.StockState != from {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot toggle return on order in stock state %s", order.StockState))
	}

	items, err := repo.LineItemsForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocation ledger")
	}

	if received {
		restored, skipped, err := s.restoreFromLedger(ctx, repo, items)
		if err != nil {
			return nil, err
		}
		result.MovedQuantity = restored
		result.SkippedItems = skipped
	} else {
		removed, skipped, err := s.redeductFromLedger(ctx, repo, items)
		if err != nil {
			return nil, err
		}
		result.MovedQuantity = removed
		result.SkippedItems = skipped
	}

	moved, err := repo.TransitionStockState(ctx, orderID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist return state")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order state changed mid-toggle")
	}

	result.Changed = true
	return result, nil
}

// redeductFromLedger re-removes the ledger's quantities from their original
// batches. If a batch no longer holds the full amount (something else consumed
// the restored units in the meantime) it takes what is left and logs the gap.
func (s *service) redeductFromLedger(ctx context.Context, repo Repository, items []models.AllocationLineItem) (int, int, error) {
	batchTotals, productTotals := groupLedger(items)

	removed := 0
	skipped := 0
	for _, group := range batchTotals {
		ok, err := repo.DeductBatch(ctx, group.id, group.qty)
		if err != nil {
			return removed, skipped, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-deduct batch")
		}
		if ok {
			removed += group.qty
			continue
		}

		batch, err := repo.FindBatch(ctx, group.id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				skipped++
				s.warn(ctx, "batch missing during return un-receive", group.id)
				continue
			}
			return removed, skipped, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batch")
		}
		take := batch.RemainingQuantity
		if take > group.qty {
			take = group.qty
		}
		if take > 0 {
			if _, err := repo.DeductBatch(ctx, group.id, take); err != nil {
				return removed, skipped, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-deduct batch")
			}
			removed += take
		}
		skipped++
		s.warn(ctx, "batch short during return un-receive", group.id)
	}

	for _, group := range productTotals {
		if _, err := repo.AdjustProductStock(ctx, group.id, -group.qty); err != nil {
			return removed, skipped, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-deduct product stock")
		}
	}

	return removed, skipped, nil
}

func (s *service) BatchesForProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryBatch, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	return s.repo.BatchesForProduct(ctx, productID)
}

func (s *service) LineItemsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AllocationLineItem, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.repo.LineItemsForOrder(ctx, orderID)
}

// CostSummary aggregates remaining stock and the weighted average cost of the
// undepleted batches per product.
func (s *service) CostSummary(ctx context.Context) ([]ProductCostSummary, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}

	summaries := make([]ProductCostSummary, 0, len(products))
	for _, product := range products {
		batches, err := s.repo.AvailableBatches(ctx, product.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batches")
		}

		summary := ProductCostSummary{
			ProductID:       product.ID,
			Name:            product.Name,
			WeightedAvgCost: decimal.Zero,
		}
		totalValue := decimal.Zero
		for _, batch := range batches {
			summary.RemainingTotal += batch.RemainingQuantity
			summary.ActiveBatchCount++
			totalValue = totalValue.Add(batch.UnitCost.Mul(decimal.NewFromInt(int64(batch.RemainingQuantity))))
		}
		if summary.RemainingTotal > 0 {
			summary.WeightedAvgCost = totalValue.DivRound(decimal.NewFromInt(int64(summary.RemainingTotal)), 4)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ReconcileStock recomputes every product's stock cache from its batch rows
// and repairs any drift.
func (s *service) ReconcileStock(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		products, err := repo.ListProducts(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
		}
		for _, product := range products {
			report.ProductsChecked++
			batches, err := repo.BatchesForProduct(ctx, product.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load batches")
			}
			actual := 0
			for _, batch := range batches {
				actual += batch.RemainingQuantity
			}
			if actual == product.CurrentStock {
				continue
			}
			if err := repo.SetProductStock(ctx, product.ID, actual); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "repair product stock")
			}
			report.ProductsRepaired++
			s.warn(ctx, "repaired stock cache drift", product.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) warn(ctx context.Context, msg string, id uuid.UUID) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "id", id.String()), msg)
}
