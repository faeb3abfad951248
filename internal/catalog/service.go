package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/parcelops/backend/pkg/db"
	"github.com/parcelops/backend/pkg/db/models"
	pkgerrors "github.com/parcelops/backend/pkg/errors"
	"github.com/parcelops/backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the product catalog and stock receipts. Receiving stock is
// the only way new cost layers enter the system: every receipt becomes one
// immutable batch.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ReceiveStock(ctx context.Context, input ReceiveStockInput) (*models.InventoryBatch, error)
	UpdateProductCost(ctx context.Context, productID uuid.UUID, cogs decimal.Decimal) (*models.Product, error)
	SeedInitialStock(ctx context.Context) (*SeedReport, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name         string
	DefaultCOGS  decimal.Decimal
	InitialStock int
}

// ReceiveStockInput describes one stock receipt. UnitCost falls back to the
// product's default cost when nil; ReceivedAt falls back to now.
type ReceiveStockInput struct {
	ProductID  uuid.UUID
	Quantity   int
	UnitCost   *decimal.Decimal
	ReceivedAt *time.Time
	Reference  *string
}

// SeedReport summarizes a one-time backfill of batches from legacy stock counts.
type SeedReport struct {
	ProductsSeeded  int `json:"products_seeded"`
	ProductsSkipped int `json:"products_skipped"`
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService constructs the catalog service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// CreateProduct registers a product, optionally seeding its first batch when
// an initial stock count is supplied.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name required")
	}
	if input.DefaultCOGS.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "default cost cannot be negative")
	}
	if input.InitialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock cannot be negative")
	}

	product := &models.Product{
		ID:          uuid.New(),
		Name:        name,
		DefaultCOGS: input.DefaultCOGS,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateProduct(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "product name already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		if input.InitialStock > 0 {
			if _, err := s.receiveTx(ctx, repo, ReceiveStockInput{
				ProductID: product.ID,
				Quantity:  input.InitialStock,
				UnitCost:  &input.DefaultCOGS,
			}, product); err != nil {
				return err
			}
			product.CurrentStock = input.InitialStock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithProductID(ctx, product.ID.String()), "product created")
	}
	return product, nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

// ReceiveStock records one receipt: a new batch plus a stock-cache bump, in
// one transaction.
func (s *service) ReceiveStock(ctx context.Context, input ReceiveStockInput) (*models.InventoryBatch, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost cannot be negative")
	}

	var batch *models.InventoryBatch
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		batch, err = s.receiveTx(ctx, repo, input, product)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithBatchID(ctx, batch.ID.String()), "stock received")
	}
	return batch, nil
}

func (s *service) receiveTx(ctx context.Context, repo Repository, input ReceiveStockInput, product *models.Product) (*models.InventoryBatch, error) {
	unitCost := product.DefaultCOGS
	if input.UnitCost != nil {
		unitCost = *input.UnitCost
	}
	receivedAt := time.Now().UTC()
	if input.ReceivedAt != nil {
		receivedAt = input.ReceivedAt.UTC()
	}

	seq, err := repo.NextBatchSeq(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign batch seq")
	}

	batch := &models.InventoryBatch{
		ID:                uuid.New(),
		Seq:               seq,
		ProductID:         product.ID,
		QuantityReceived:  input.Quantity,
		RemainingQuantity: input.Quantity,
		UnitCost:          unitCost,
		ReceivedAt:        receivedAt,
		Reference:         input.Reference,
	}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create batch")
	}
	if err := repo.IncrementStock(ctx, product.ID, input.Quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump stock cache")
	}
	return batch, nil
}

// UpdateProductCost changes the product's default cost. Existing batches and
// finalized order costs keep the unit cost they were recorded with; the new
// value only affects future receipts that omit a unit cost.
func (s *service) UpdateProductCost(ctx context.Context, productID uuid.UUID, cogs decimal.Decimal) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if cogs.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "default cost cannot be negative")
	}

	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	if err := s.repo.UpdateDefaultCOGS(ctx, productID, cogs); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update default cost")
	}
	product.DefaultCOGS = cogs

	if s.logg != nil {
		s.logg.Info(s.logg.WithProductID(ctx, productID.String()), "product cost updated")
	}
	return product, nil
}

// SeedInitialStock backfills one batch per product from the legacy stock count
// and default cost, for catalogs that predate batch tracking. Products that
// already have batches, or hold no stock, are skipped, so re-running is safe.
func (s *service) SeedInitialStock(ctx context.Context) (*SeedReport, error) {
	report := &SeedReport{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		products, err := repo.ListProducts(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
		}
		now := time.Now().UTC()
		for _, product := range products {
			if product.CurrentStock <= 0 {
				report.ProductsSkipped++
				continue
			}
			existing, err := repo.CountBatches(ctx, product.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count batches")
			}
			if existing > 0 {
				report.ProductsSkipped++
				continue
			}
			seq, err := repo.NextBatchSeq(ctx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign batch seq")
			}
			batch := &models.InventoryBatch{
				ID:                uuid.New(),
				Seq:               seq,
				ProductID:         product.ID,
				QuantityReceived:  product.CurrentStock,
				RemainingQuantity: product.CurrentStock,
				UnitCost:          product.DefaultCOGS,
				ReceivedAt:        now,
			}
			if err := repo.CreateBatch(ctx, batch); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create seed batch")
			}
			report.ProductsSeeded++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
