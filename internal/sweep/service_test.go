package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/enums"
)

type fakeOrderSource struct {
	mu     sync.Mutex
	orders []models.Order

	statusUpdates map[uuid.UUID]enums.OrderStatus
	updateErr     error
}

func (f *fakeOrderSource) ListUndeliveredWithTracking(_ context.Context, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page []models.Order
	for _, order := range f.orders {
		if order.Status == enums.OrderStatusDelivered || order.Status == enums.OrderStatusCanceled {
			continue
		}
		if order.TrackingNumber == nil {
			continue
		}
		page = append(page, order)
	}
	if offset >= len(page) {
		return nil, nil
	}
	page = page[offset:]
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func (f *fakeOrderSource) UpdateStatus(_ context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusUpdates == nil {
		f.statusUpdates = map[uuid.UUID]enums.OrderStatus{}
	}
	f.statusUpdates[orderID] = status
	for i := range f.orders {
		if f.orders[i].ID == orderID {
			f.orders[i].Status = status
		}
	}
	return nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []uuid.UUID
	err       error
	source    *fakeOrderSource
}

func (f *fakeDeliverer) MarkDelivered(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.delivered = append(f.delivered, orderID)
	f.mu.Unlock()
	if f.source != nil {
		f.source.mu.Lock()
		for i := range f.source.orders {
			if f.source.orders[i].ID == orderID {
				f.source.orders[i].Status = enums.OrderStatusDelivered
			}
		}
		f.source.mu.Unlock()
	}
	return &models.Order{ID: orderID, Status: enums.OrderStatusDelivered}, nil
}

type fakeChecker struct {
	statuses map[string]enums.OrderStatus
	errs     map[string]error
	block    chan struct{}
}

func (f *fakeChecker) Check(_ context.Context, trackingNumber string) (enums.OrderStatus, error) {
	if f.block != nil {
		<-f.block
	}
	if err, ok := f.errs[trackingNumber]; ok {
		return "", err
	}
	return f.statuses[trackingNumber], nil
}

type fakeLock struct {
	acquired bool
	granted  bool
	released bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquired = true
	return f.granted, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.released = true
	return nil
}

func tracked(id uuid.UUID, tn string, status enums.OrderStatus) models.Order {
	return models.Order{ID: id, TrackingNumber: &tn, Status: status}
}

func TestSweepRefreshesStatuses(t *testing.T) {
	t.Parallel()

	shipped := uuid.New()
	deliveredID := uuid.New()
	failing := uuid.New()
	source := &fakeOrderSource{orders: []models.Order{
		tracked(shipped, "TN-1", enums.OrderStatusPending),
		tracked(deliveredID, "TN-2", enums.OrderStatusShipped),
		tracked(failing, "TN-3", enums.OrderStatusShipped),
	}}
	delivery := &fakeDeliverer{source: source}
	checker := &fakeChecker{
		statuses: map[string]enums.OrderStatus{
			"TN-1": enums.OrderStatusShipped,
			"TN-2": enums.OrderStatusDelivered,
		},
		errs: map[string]error{"TN-3": errors.New("carrier timeout")},
	}

	svc, err := NewService(ServiceParams{
		Orders:   source,
		Delivery: delivery,
		Checker:  checker,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Checked != 3 || report.Updated != 2 || report.Delivered != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if source.statusUpdates[shipped] != enums.OrderStatusShipped {
		t.Fatalf("shipped order not updated: %+v", source.statusUpdates)
	}
	if len(delivery.delivered) != 1 || delivery.delivered[0] != deliveredID {
		t.Fatalf("unexpected deliveries: %+v", delivery.delivered)
	}
}

func TestSweepPagesPastTerminalTransitions(t *testing.T) {
	t.Parallel()

	canceledID := uuid.New()
	movingID := uuid.New()
	deliveredID := uuid.New()
	shippedID := uuid.New()
	source := &fakeOrderSource{orders: []models.Order{
		tracked(canceledID, "TN-1", enums.OrderStatusShipped),
		tracked(movingID, "TN-2", enums.OrderStatusShipped),
		tracked(deliveredID, "TN-3", enums.OrderStatusShipped),
		tracked(shippedID, "TN-4", enums.OrderStatusPending),
	}}
	delivery := &fakeDeliverer{source: source}
	checker := &fakeChecker{
		statuses: map[string]enums.OrderStatus{
			"TN-1": enums.OrderStatusCanceled,
			"TN-2": enums.OrderStatusInTransit,
			"TN-3": enums.OrderStatusDelivered,
			"TN-4": enums.OrderStatusShipped,
		},
	}

	svc, err := NewService(ServiceParams{
		Orders:   source,
		Delivery: delivery,
		Checker:  checker,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	// Canceled and delivered orders both leave the filtered set mid-sweep;
	// every order must still be examined exactly once.
	report, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Checked != 4 {
		t.Fatalf("checked = %d, want 4: %+v", report.Checked, report)
	}
	if report.Updated != 4 || report.Delivered != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if source.statusUpdates[canceledID] != enums.OrderStatusCanceled {
		t.Fatalf("canceled order not updated: %+v", source.statusUpdates)
	}
	if source.statusUpdates[shippedID] != enums.OrderStatusShipped {
		t.Fatalf("last page order skipped: %+v", source.statusUpdates)
	}
}

func TestSweepSingleFlight(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	block := make(chan struct{})
	source := &fakeOrderSource{orders: []models.Order{
		tracked(orderID, "TN-1", enums.OrderStatusShipped),
	}}
	checker := &fakeChecker{
		statuses: map[string]enums.OrderStatus{"TN-1": enums.OrderStatusShipped},
		block:    block,
	}
	svc, err := NewService(ServiceParams{
		Orders:   source,
		Delivery: &fakeDeliverer{},
		Checker:  checker,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := svc.RunOnce(context.Background()); err != nil {
			t.Errorf("run once: %v", err)
		}
	}()

	deadline := time.After(2 * time.Second)
	for !svc.InProgress() {
		select {
		case <-deadline:
			t.Fatal("sweep never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// A second call while the first is mid-flight must be a no-op.
	report, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("overlapping run: %v", err)
	}
	if report.Checked != 0 {
		t.Fatalf("overlapping run did work: %+v", report)
	}

	close(block)
	<-done
	if svc.InProgress() {
		t.Fatal("in-progress flag not cleared")
	}
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	source := &fakeOrderSource{orders: []models.Order{
		tracked(uuid.New(), "TN-1", enums.OrderStatusShipped),
	}}
	lock := &fakeLock{granted: false}
	svc, err := NewService(ServiceParams{
		Orders:   source,
		Delivery: &fakeDeliverer{},
		Checker:  &fakeChecker{},
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Checked != 0 {
		t.Fatalf("locked-out run did work: %+v", report)
	}
	if !lock.acquired || lock.released {
		t.Fatalf("unexpected lock interaction: %+v", lock)
	}
}

func TestSweepReleasesLock(t *testing.T) {
	t.Parallel()

	lock := &fakeLock{granted: true}
	svc, err := NewService(ServiceParams{
		Orders:   &fakeOrderSource{},
		Delivery: &fakeDeliverer{},
		Checker:  &fakeChecker{},
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !lock.released {
		t.Fatal("lock not released")
	}
}

func TestSweepUnchangedStatusNotWritten(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	source := &fakeOrderSource{orders: []models.Order{
		tracked(orderID, "TN-1", enums.OrderStatusShipped),
	}}
	checker := &fakeChecker{statuses: map[string]enums.OrderStatus{"TN-1": enums.OrderStatusShipped}}
	svc, err := NewService(ServiceParams{
		Orders:   source,
		Delivery: &fakeDeliverer{},
		Checker:  checker,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.Checked != 1 || report.Updated != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(source.statusUpdates) != 0 {
		t.Fatalf("unexpected writes: %+v", source.statusUpdates)
	}
}
