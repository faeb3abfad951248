package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/enums"
	"github.com/parcelops/backend/pkg/pagination"
)

// Repository persists orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Order, error)
	ListUndeliveredWithTracking(ctx context.Context, limit, offset int) ([]models.Order, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
	FinalizeCost(ctx context.Context, orderID uuid.UUID, cost decimal.Decimal, deliveredAt time.Time) (bool, error)
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// List pages newest first with a keyset cursor over (created_at, id), so rows
// created or deleted between pages never shift the window.
func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListUndeliveredWithTracking pages through the orders the delivery sweep
// cares about: not yet in a terminal status and carrying a tracking number.
func (r *repository) ListUndeliveredWithTracking(ctx context.Context, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status NOT IN ? AND tracking_number IS NOT NULL", []enums.OrderStatus{
			enums.OrderStatusDelivered,
			enums.OrderStatusCanceled,
		}).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) Delete(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Order{}, "id = ?", orderID).Error
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		UpdateColumn("status", status).Error
}

// FinalizeCost records the frozen cost and delivery time, but only on the
// first delivered transition: the guard refuses to touch a row whose
// final_cost is already set, so nothing ever overwrites a finalized cost.
func (r *repository) FinalizeCost(ctx context.Context, orderID uuid.UUID, cost decimal.Decimal, deliveredAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND final_cost IS NULL", orderID).
		UpdateColumns(map[string]interface{}{
			"final_cost":   cost,
			"delivered_at": deliveredAt,
			"status":       enums.OrderStatusDelivered,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
