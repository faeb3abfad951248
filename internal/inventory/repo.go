package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/enums"
)

// Repository exposes batch-store and allocation-ledger persistence. Quantity
// mutations are guarded compare-and-set updates so a remaining quantity can
// never go negative or exceed what the batch received, even under overlapping
// requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	AvailableBatches(ctx context.Context, productID uuid.UUID) ([]models.InventoryBatch, error)
	BatchesForProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryBatch, error)
	FindBatch(ctx context.Context, batchID uuid.UUID) (*models.InventoryBatch, error)
	DeductBatch(ctx context.Context, batchID uuid.UUID, qty int) (bool, error)
	RestoreBatch(ctx context.Context, batchID uuid.UUID, qty int) (bool, error)

	CreateLineItems(ctx context.Context, items []models.AllocationLineItem) error
	LineItemsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AllocationLineItem, error)
	DeleteLineItemsForOrder(ctx context.Context, orderID uuid.UUID) error

	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	AdjustProductStock(ctx context.Context, productID uuid.UUID, delta int) (bool, error)
	SetProductStock(ctx context.Context, productID uuid.UUID, stock int) error
	ListProducts(ctx context.Context) ([]models.Product, error)

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	TransitionStockState(ctx context.Context, orderID uuid.UUID, from, to enums.StockState) (bool, error)
	SetProvisionalCost(ctx context.Context, orderID uuid.UUID, cost decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// AvailableBatches returns the product's undepleted batches in FIFO order:
// received_at ascending, then seq ascending so same-instant receipts are
// consumed in insertion order.
func (r *repository) AvailableBatches(ctx context.Context, productID uuid.UUID) ([]models.InventoryBatch, error) {
	var batches []models.InventoryBatch
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND remaining_quantity > 0", productID).
		Order("received_at ASC, seq ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// BatchesForProduct returns every batch for display, newest receipt last,
// including depleted ones kept for cost history.
func (r *repository) BatchesForProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryBatch, error) {
	var batches []models.InventoryBatch
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("received_at ASC, seq ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) FindBatch(ctx context.Context, batchID uuid.UUID) (*models.InventoryBatch, error) {
	var batch models.InventoryBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", batchID).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// DeductBatch decrements remaining_quantity by qty only if the batch still
// holds at least that much. Returns false when the guard did not match, which
// callers treat as concurrent depletion.
func (r *repository) DeductBatch(ctx context.Context, batchID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryBatch{}).
		Where("id = ? AND remaining_quantity >= ?", batchID, qty).
		UpdateColumn("remaining_quantity", gorm.Expr("remaining_quantity - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RestoreBatch increments remaining_quantity by qty, refusing to exceed
// quantity_received.
func (r *repository) RestoreBatch(ctx context.Context, batchID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryBatch{}).
		Where("id = ? AND remaining_quantity + ? <= quantity_received", batchID, qty).
		UpdateColumn("remaining_quantity", gorm.Expr("remaining_quantity + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.AllocationLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) LineItemsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AllocationLineItem, error) {
	var items []models.AllocationLineItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) DeleteLineItemsForOrder(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.AllocationLineItem{}).Error
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// AdjustProductStock moves the denormalized stock cache by delta, clamped at
// zero on the way down.
func (r *repository) AdjustProductStock(ctx context.Context, productID uuid.UUID, delta int) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Product{})
	if delta < 0 {
		res := tx.
			Where("id = ? AND current_stock >= ?", productID, -delta).
			UpdateColumn("current_stock", gorm.Expr("current_stock + ?", delta))
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
		// Clamp instead of going negative.
		res = r.db.WithContext(ctx).Model(&models.Product{}).
			Where("id = ?", productID).
			UpdateColumn("current_stock", 0)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected > 0, nil
	}
	res := tx.
		Where("id = ?", productID).
		UpdateColumn("current_stock", gorm.Expr("current_stock + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetProductStock(ctx context.Context, productID uuid.UUID, stock int) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("current_stock", stock).Error
}

func (r *repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStockState flips the order's stock state only when it currently
// matches from. Running this inside the same transaction as the batch and
// ledger writes makes the allocate-once guard a hard precondition: a retried
// call finds the state already moved and becomes a no-op instead of a double
// deduction.
func (r *repository) TransitionStockState(ctx context.Context, orderID uuid.UUID, from, to enums.StockState) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND stock_state = ?", orderID, from).
		UpdateColumn("stock_state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetProvisionalCost(ctx context.Context, orderID uuid.UUID, cost decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		UpdateColumn("provisional_cost", cost).Error
}
