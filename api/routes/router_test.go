package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/parcelops/backend/internal/catalog"
	"github.com/parcelops/backend/internal/inventory"
	"github.com/parcelops/backend/internal/orders"
	"github.com/parcelops/backend/pkg/config"
	"github.com/parcelops/backend/pkg/db"
	"github.com/parcelops/backend/pkg/db/models"
	"github.com/parcelops/backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.InventoryBatch{},
		&models.AllocationLineItem{},
		&models.Order{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := db.NewFromConn(conn)
	logg := logger.New(logger.Options{
		ServiceName: "routes-test",
		Level:       zerolog.ErrorLevel,
		Output:      io.Discard,
	})

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo: inventory.NewRepository(conn),
		Tx:   client,
	})
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	catalogRepo := catalog.NewRepository(conn)
	catalogService, err := catalog.NewService(catalogRepo, client, logg)
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	resolver, err := catalog.NewNameResolver(catalogRepo)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	orderService, err := orders.NewService(orders.NewRepository(conn), client, resolver, inventoryService, logg)
	if err != nil {
		t.Fatalf("order service: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"

	return NewRouter(cfg, logg, stubPinger{}, nil, catalogService, inventoryService, orderService, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", raw, err)
	}
	return value
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)

	// Create a product with initial stock.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/products", map[string]any{
		"name":          "Mug",
		"default_cogs":  "2.00",
		"initial_stock": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: status %d body %s", rec.Code, rec.Body.String())
	}
	var product struct {
		ID uuid.UUID `json:"ID"`
	}
	decodeData(t, rec, &product)

	// Receive a second, more expensive batch.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/products/%s/receipts", product.ID), map[string]any{
		"quantity":  5,
		"unit_cost": "3.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("receive stock: status %d body %s", rec.Code, rec.Body.String())
	}

	// Create an order spanning both batches.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders", map[string]any{
		"description": "12x Mug",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: status %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Order struct {
			ID uuid.UUID `json:"ID"`
		} `json:"order"`
		Allocation struct {
			Allocated int    `json:"allocated"`
			TotalCost string `json:"total_cost"`
		} `json:"allocation"`
	}
	decodeData(t, rec, &created)
	if created.Allocation.Allocated != 12 {
		t.Fatalf("allocated = %d, want 12", created.Allocation.Allocated)
	}
	// 10 * 2.00 + 2 * 3.00
	if !mustDecimal(t, created.Allocation.TotalCost).Equal(decimal.RequireFromString("26")) {
		t.Fatalf("total cost = %q, want 26", created.Allocation.TotalCost)
	}

	// The ledger names both batches.
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/orders/%s/allocations", created.Order.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list allocations: status %d body %s", rec.Code, rec.Body.String())
	}
	var items []json.RawMessage
	decodeData(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("ledger items = %d, want 2", len(items))
	}

	// Deliver and verify the cost froze.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/delivered", created.Order.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark delivered: status %d body %s", rec.Code, rec.Body.String())
	}
	var delivered struct {
		Status    string  `json:"Status"`
		FinalCost *string `json:"FinalCost"`
	}
	decodeData(t, rec, &delivered)
	if delivered.Status != "delivered" {
		t.Fatalf("status = %q, want delivered", delivered.Status)
	}
	if delivered.FinalCost == nil || !mustDecimal(t, *delivered.FinalCost).Equal(decimal.RequireFromString("26")) {
		t.Fatalf("final cost = %v, want 26", delivered.FinalCost)
	}

	// Cost summary reflects the remaining three units from the second batch.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/inventory/cost-summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cost summary: status %d body %s", rec.Code, rec.Body.String())
	}
	var summaries []struct {
		RemainingTotal int `json:"remaining_total"`
	}
	decodeData(t, rec, &summaries)
	if len(summaries) != 1 || summaries[0].RemainingTotal != 3 {
		t.Fatalf("unexpected summary: %+v", summaries)
	}
}

func TestCreateOrderValidationOverHTTP(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400; body %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestUnknownOrderReturns404(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404; body %s", rec.Code, rec.Body.String())
	}
}
