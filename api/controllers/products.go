package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parcelops/backend/api/responses"
	"github.com/parcelops/backend/api/validators"
	catalogsvc "github.com/parcelops/backend/internal/catalog"
	pkgerrors "github.com/parcelops/backend/pkg/errors"
	"github.com/parcelops/backend/pkg/logger"
)

// CreateProduct handles catalog product creation.
func CreateProduct(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

type createProductRequest struct {
	Name         string  `json:"name" validate:"required"`
	DefaultCOGS  *string `json:"default_cogs,omitempty"`
	InitialStock int     `json:"initial_stock" validate:"omitempty,min=0"`
}

func (req createProductRequest) toInput() (catalogsvc.CreateProductInput, error) {
	input := catalogsvc.CreateProductInput{
		Name:         req.Name,
		DefaultCOGS:  decimal.Zero,
		InitialStock: req.InitialStock,
	}
	if req.DefaultCOGS != nil {
		cogs, err := decimal.NewFromString(*req.DefaultCOGS)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid default cost")
		}
		input.DefaultCOGS = cogs
	}
	return input, nil
}

// GetProduct returns one catalog product.
func GetProduct(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, product)
	}
}

// ListProducts returns the full catalog.
func ListProducts(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.ListProducts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

// UpdateProductCost changes a product's default cost for future receipts.
func UpdateProductCost(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductCostRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cogs, err := decimal.NewFromString(payload.DefaultCOGS)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid default cost"))
			return
		}

		product, err := svc.UpdateProductCost(r.Context(), productID, cogs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, product)
	}
}

type updateProductCostRequest struct {
	DefaultCOGS string `json:"default_cogs" validate:"required"`
}

// ReceiveStock records a stock receipt for a product.
func ReceiveStock(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload receiveStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := svc.ReceiveStock(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, batch)
	}
}

type receiveStockRequest struct {
	Quantity   int     `json:"quantity" validate:"required,min=1"`
	UnitCost   *string `json:"unit_cost,omitempty"`
	ReceivedAt *string `json:"received_at,omitempty"`
	Reference  *string `json:"reference,omitempty"`
}

func (req receiveStockRequest) toInput(productID uuid.UUID) (catalogsvc.ReceiveStockInput, error) {
	input := catalogsvc.ReceiveStockInput{
		ProductID: productID,
		Quantity:  req.Quantity,
		Reference: req.Reference,
	}
	if req.UnitCost != nil {
		cost, err := decimal.NewFromString(*req.UnitCost)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit cost")
		}
		input.UnitCost = &cost
	}
	if req.ReceivedAt != nil {
		at, err := time.Parse(time.RFC3339, *req.ReceivedAt)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid received_at timestamp")
		}
		input.ReceivedAt = &at
	}
	return input, nil
}

func parseIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
