package sweep

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/enums"
	pkgerrors "github.com/parcelops/backend/pkg/errors"
	"github.com/parcelops/backend/pkg/logger"
	"github.com/parcelops/backend/pkg/metrics"
)

const (
	defaultInterval = 30 * time.Minute
	defaultPageSize = 100
	sweepName       = "delivery-status"
)

// Checker asks the carrier for the current status of one tracking number.
// Implementations are external; the sweep never retries or interprets beyond
// the returned status.
type Checker interface {
	Check(ctx context.Context, trackingNumber string) (enums.OrderStatus, error)
}

type orderSource interface {
	ListUndeliveredWithTracking(ctx context.Context, limit, offset int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}

type deliverer interface {
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// Report summarizes one sweep run.
type Report struct {
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// ServiceParams configure the sweep service.
type ServiceParams struct {
	Orders   orderSource
	Delivery deliverer
	Checker  Checker
	Lock     Lock
	Logger   *logger.Logger
	Metrics  *metrics.SweepMetrics
	Interval time.Duration
	PageSize int
}

// Service refreshes delivery statuses for undelivered orders that carry a
// tracking number. Runs are single-flight per process via an atomic flag and
// exclusive across instances via the lock; each order is updated in its own
// transaction so one carrier hiccup never stalls the rest of the sweep.
type Service struct {
	orders   orderSource
	delivery deliverer
	checker  Checker
	lock     Lock
	logg     *logger.Logger
	metrics  *metrics.SweepMetrics
	interval time.Duration
	pageSize int

	running atomic.Bool
}

// NewService builds the sweep service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order source required")
	}
	if params.Delivery == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	if params.Checker == nil {
		return nil, fmt.Errorf("status checker required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Service{
		orders:   params.Orders,
		delivery: params.Delivery,
		checker:  params.Checker,
		lock:     params.Lock,
		logg:     params.Logger,
		metrics:  params.Metrics,
		interval: interval,
		pageSize: pageSize,
	}, nil
}

// InProgress reports whether a sweep is currently running in this process.
func (s *Service) InProgress() bool {
	return s.running.Load()
}

// Run starts the sweep loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logError(ctx, "sweep run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logInfo(ctx, "sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logError(ctx, "sweep run failed", err)
			}
		}
	}
}

// RunOnce executes a single sweep. A run already in progress, here or on
// another instance, makes this call a no-op with an empty report.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logInfo(ctx, "sweep already in progress; skipping")
		return &Report{}, nil
	}
	defer s.running.Store(false)

	if s.lock != nil {
		locked, err := s.lock.Acquire(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sweep lock")
		}
		if !locked {
			s.logInfo(ctx, "another instance holds the sweep lock; skipping")
			return &Report{}, nil
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				s.logError(ctx, "release sweep lock", err)
			}
		}()
	}

	start := time.Now()
	report, err := s.sweep(ctx)
	s.metrics.ObserveDuration(sweepName, time.Since(start))
	if err != nil {
		s.metrics.IncFailure(sweepName)
		return nil, err
	}
	return report, nil
}

func (s *Service) sweep(ctx context.Context) (*Report, error) {
	report := &Report{}
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		orders, err := s.orders.ListUndeliveredWithTracking(ctx, s.pageSize, offset)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders for sweep")
		}
		if len(orders) == 0 {
			break
		}
		removed := 0
		for _, order := range orders {
			if s.sweepOrder(ctx, order, report) {
				removed++
			}
		}
		// Orders that reached a terminal status drop out of the filtered
		// result set, so only advance past the ones that stayed.
		offset += len(orders) - removed
		if len(orders) < s.pageSize {
			break
		}
	}

	s.logInfo(ctx, fmt.Sprintf("sweep complete: %d checked, %d updated, %d delivered, %d failed",
		report.Checked, report.Updated, report.Delivered, report.Failed))
	return report, nil
}

// sweepOrder refreshes one order and reports whether the new status removed
// it from the undelivered-with-tracking result set.
func (s *Service) sweepOrder(ctx context.Context, order models.Order, report *Report) bool {
	if order.TrackingNumber == nil || *order.TrackingNumber == "" {
		return false
	}
	report.Checked++
	s.metrics.IncChecked(sweepName, "checked")

	status, err := s.checker.Check(ctx, *order.TrackingNumber)
	if err != nil {
		report.Failed++
		s.metrics.IncChecked(sweepName, "error")
		s.logError(s.withOrder(ctx, order.ID), "carrier status check failed", err)
		return false
	}
	if !status.IsValid() || status == order.Status {
		return false
	}

	if status == enums.OrderStatusDelivered {
		if _, err := s.delivery.MarkDelivered(ctx, order.ID); err != nil {
			report.Failed++
			s.metrics.IncChecked(sweepName, "error")
			s.logError(s.withOrder(ctx, order.ID), "mark delivered failed", err)
			return false
		}
		report.Delivered++
		report.Updated++
		s.metrics.IncChecked(sweepName, "delivered")
		return true
	}

	if err := s.orders.UpdateStatus(ctx, order.ID, status); err != nil {
		report.Failed++
		s.metrics.IncChecked(sweepName, "error")
		s.logError(s.withOrder(ctx, order.ID), "status update failed", err)
		return false
	}
	report.Updated++
	s.metrics.IncChecked(sweepName, "updated")
	return status.IsTerminal()
}

func (s *Service) withOrder(ctx context.Context, orderID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, orderID.String())
}

func (s *Service) logInfo(ctx context.Context, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(ctx, msg)
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(ctx, msg, err)
}
