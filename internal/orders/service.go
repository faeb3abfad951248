package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/parcelops/backend/internal/catalog"
	"github.com/parcelops/backend/internal/inventory"
	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/enums"
	pkgerrors "github.com/parcelops/backend/pkg/errors"
	"github.com/parcelops/backend/pkg/logger"
	"github.com/parcelops/backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type allocator interface {
	AllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, demands []inventory.Demand) (*inventory.OrderAllocation, error)
	ReverseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*inventory.ReversalResult, error)
	SetReturnReceived(ctx context.Context, orderID uuid.UUID, received bool) (*inventory.ReturnToggleResult, error)
}

// Service drives the order lifecycle around the allocation core: creation
// resolves and allocates, deletion reverses, delivery freezes cost.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params) (*OrderPage, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	BulkDelete(ctx context.Context, orderIDs []uuid.UUID) (*BulkDeleteResult, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetReturnReceived(ctx context.Context, orderID uuid.UUID, received bool) (*models.Order, error)
}

// CreateOrderInput is the validated payload for a new order.
type CreateOrderInput struct {
	Description    string
	TrackingNumber *string
}

// CreateOrderResult pairs the created order with what allocation managed to
// do. Warning is set when the resolver found products but stock could not
// fully cover them.
type CreateOrderResult struct {
	Order      *models.Order              `json:"order"`
	Allocation *inventory.OrderAllocation `json:"allocation,omitempty"`
	Warning    string                     `json:"warning,omitempty"`
}

// OrderPage is one page of orders, newest first. NextCursor is empty on the
// last page.
type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// BulkDeleteResult reports a bulk deletion, one transaction per order.
type BulkDeleteResult struct {
	Deleted int         `json:"deleted"`
	Failed  int         `json:"failed"`
	Errors  []BulkError `json:"errors,omitempty"`

	err error
}

// BulkError names one order that could not be deleted.
type BulkError struct {
	OrderID uuid.UUID `json:"order_id"`
	Message string    `json:"message"`
}

// Err returns the aggregated failure, nil when every order was deleted.
func (r *BulkDeleteResult) Err() error {
	return r.err
}

type service struct {
	repo      Repository
	tx        txRunner
	resolver  catalog.Resolver
	allocator allocator
	logg      *logger.Logger
}

// NewService constructs the order service.
func NewService(repo Repository, tx txRunner, resolver catalog.Resolver, alloc allocator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("product resolver required")
	}
	if alloc == nil {
		return nil, fmt.Errorf("inventory allocator required")
	}
	return &service{repo: repo, tx: tx, resolver: resolver, allocator: alloc, logg: logg}, nil
}

// CreateOrder records the order and runs FIFO allocation for whatever the
// resolver recognized in the description. Resolution happens strictly before
// the transaction; no external call runs while batch rows are being written.
// Orders whose description matches no product are created unallocated.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order description required")
	}

	matches, err := s.resolver.Resolve(ctx, description)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve order description")
	}

	demands := make([]inventory.Demand, 0, len(matches))
	for _, match := range matches {
		demands = append(demands, inventory.Demand{ProductID: match.ProductID, Quantity: match.Quantity})
	}

	order := &models.Order{
		ID:             uuid.New(),
		Description:    description,
		TrackingNumber: input.TrackingNumber,
		Status:         enums.OrderStatusPending,
		StockState:     enums.StockStateUnallocated,
	}

	result := &CreateOrderResult{Order: order}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if len(demands) == 0 {
			return nil
		}
		allocation, err := s.allocator.AllocateOrderTx(ctx, tx, order.ID, demands)
		if err != nil {
			return err
		}
		result.Allocation = allocation
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Allocation != nil {
		order.StockState = enums.StockStateAllocated
		cost := result.Allocation.TotalCost
		order.ProvisionalCost = &cost
		if !result.Allocation.Fulfilled {
			result.Warning = fmt.Sprintf("could not fully allocate: %d of %d units",
				result.Allocation.Allocated, result.Allocation.Requested)
		}
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	}
	return result, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// ListOrders pages newest first. The repo is asked for one extra row to detect
// whether a next page exists; the cursor encodes the last returned row.
func (s *service) ListOrders(ctx context.Context, params pagination.Params) (*OrderPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	orders, err := s.repo.List(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	page := &OrderPage{Orders: orders}
	if len(orders) > limit {
		page.Orders = orders[:limit]
		last := page.Orders[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

// DeleteOrder reverses whatever the order holds, then removes the row. Both
// happen in one transaction so a failed delete leaves the allocation intact.
func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.allocator.ReverseTx(ctx, tx, orderID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Delete(ctx, orderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order deleted")
	}
	return nil
}

// BulkDelete removes orders one transaction each, so one failure never rolls
// back its predecessors. Failures are aggregated and reported per order.
func (s *service) BulkDelete(ctx context.Context, orderIDs []uuid.UUID) (*BulkDeleteResult, error) {
	if len(orderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	result := &BulkDeleteResult{}
	for _, orderID := range orderIDs {
		if err := s.DeleteOrder(ctx, orderID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{OrderID: orderID, Message: err.Error()})
			result.err = multierr.Append(result.err, fmt.Errorf("order %s: %w", orderID, err))
			continue
		}
		result.Deleted++
	}
	return result, nil
}

// MarkDelivered moves the order to delivered and freezes its cost. The first
// delivered transition copies the provisional cost into the final cost; any
// later call only refreshes the status and leaves the frozen cost alone.
func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		cost := decimal.Zero
		if order.ProvisionalCost != nil {
			cost = *order.ProvisionalCost
		}
		finalized, err := repo.FinalizeCost(ctx, orderID, cost, time.Now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize cost")
		}
		if !finalized {
			// Cost was frozen on an earlier delivery; only refresh the status.
			if err := repo.UpdateStatus(ctx, orderID, enums.OrderStatusDelivered); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update status")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order delivered")
	}
	return s.GetOrder(ctx, orderID)
}

// SetReturnReceived toggles whether the order's items are physically back on
// the shelf. The inventory core owns the stock movement and the state flag.
func (s *service) SetReturnReceived(ctx context.Context, orderID uuid.UUID, received bool) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, err := s.allocator.SetReturnReceived(ctx, orderID, received); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}
