package stock

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brioche-erp/brioche/internal/platform/httpx"
)

// Handler exposes standalone stock operations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transfers", h.transfer)
	r.Post("/adjustments", h.adjust)
}

type transferRequest struct {
	ItemCode     string `json:"item_code" validate:"required"`
	FromLocation string `json:"from_location" validate:"required"`
	ToLocation   string `json:"to_location" validate:"required"`
	Qty          int64  `json:"qty" validate:"gt=0"`
}

type adjustRequest struct {
	ItemCode      string `json:"item_code" validate:"required"`
	LocationCode  string `json:"location_code" validate:"required"`
	QtyDelta      int64  `json:"qty_delta" validate:"required"`
	UnitCostCents int64  `json:"unit_cost_cents" validate:"gte=0"`
}

type movementResponse struct {
	MovementID     int64  `json:"movement_id"`
	MovementType   string `json:"movement_type"`
	ItemCode       string `json:"item_code"`
	Qty            int64  `json:"qty"`
	TotalCostCents int64  `json:"total_cost_cents"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.Transfer(r.Context(), TransferInput{
		ItemCode:     req.ItemCode,
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		Qty:          req.Qty,
	})
	h.respondMovement(w, r, movement, err)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.Adjust(r.Context(), req.ItemCode, req.LocationCode, req.QtyDelta, req.UnitCostCents)
	h.respondMovement(w, r, movement, err)
}

func (h *Handler) respondMovement(w http.ResponseWriter, r *http.Request, m Movement, err error) {
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidCost), errors.Is(err, ErrSameLocation):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrInsufficientStock):
			httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
		case errors.Is(err, ErrPositionNotFound):
			httpx.Problem(w, http.StatusNotFound, "Position Not Found", err.Error())
		default:
			h.logger.Error("stock operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse{
		MovementID:     m.ID,
		MovementType:   string(m.Type),
		ItemCode:       m.ItemCode,
		Qty:            m.Qty,
		TotalCostCents: m.TotalCostCents,
	})
}
