package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/parcelops/backend/pkg/db/models"
)

// Repository persists products and stock receipts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateProduct(ctx context.Context, product *models.Product) error
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindProductByName(ctx context.Context, name string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateDefaultCOGS(ctx context.Context, productID uuid.UUID, cogs decimal.Decimal) error

	CreateBatch(ctx context.Context, batch *models.InventoryBatch) error
	NextBatchSeq(ctx context.Context) (int64, error)
	CountBatches(ctx context.Context, productID uuid.UUID) (int64, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error
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

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindProductByName matches the name case-insensitively.
func (r *repository) FindProductByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) UpdateDefaultCOGS(ctx context.Context, productID uuid.UUID, cogs decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("default_cogs", cogs).Error
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.InventoryBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// NextBatchSeq hands out the insertion counter used as the FIFO tie-break for
// batches received at the same instant. Callers must hold a transaction.
func (r *repository) NextBatchSeq(ctx context.Context) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryBatch{}).
		Select("COALESCE(MAX(seq), 0) + 1").
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repository) CountBatches(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryBatch{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count, err
}

func (r *repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("current_stock", gorm.Expr("current_stock + ?", qty)).Error
}
