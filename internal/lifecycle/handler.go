package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/platform/httpx"
	"github.com/brioche-erp/brioche/internal/posting"
	"github.com/brioche-erp/brioche/internal/shared"
	"github.com/brioche-erp/brioche/internal/stock"
)

// IdempotencyPort guards request replay on the HTTP boundary.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes order status and payment postings over HTTP.
type Handler struct {
	logger     *slog.Logger
	controller *Controller
	keys       IdempotencyPort
	validator  *validator.Validate
}

// NewHandler constructs a Handler instance. keys may be nil to disable
// Idempotency-Key header support.
func NewHandler(logger *slog.Logger, controller *Controller, keys IdempotencyPort) *Handler {
	return &Handler{logger: logger, controller: controller, keys: keys, validator: validator.New()}
}

// MountRoutes registers lifecycle routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders/{id}/status", h.postStatusChange)
	r.Post("/payments", h.postPayment)
}

func (h *Handler) postStatusChange(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order ID", "order id must be a positive integer")
		return
	}
	var req statusChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order := Order{
		OrderSnapshot: req.Order.toSnapshot(orderID),
		Status:        Status(req.CurrentStatus),
	}
	outcome, err := h.controller.PostStatusChange(r.Context(), order, Status(req.NewStatus))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

func (h *Handler) postPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.keys != nil {
		if err := h.keys.CheckAndInsert(r.Context(), key, "payments"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this idempotency key was already processed")
				return
			}
			h.respondError(w, r, err)
			return
		}
	}
	entry, err := h.controller.PostPayment(r.Context(), req.toSnapshot())
	if err != nil {
		if key != "" && h.keys != nil {
			_ = h.keys.Delete(r.Context(), key)
		}
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case ledger.IsValidationError(err),
		errors.Is(err, posting.ErrSplitMismatch),
		errors.Is(err, ErrUnknownStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, posting.ErrCancelAfterDelivered),
		errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, posting.ErrNoRecipeCost),
		errors.Is(err, posting.ErrNotInPrep),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, stock.ErrPositionNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, shared.ErrLockBusy):
		httpx.Problem(w, http.StatusServiceUnavailable, "Busy", "order is being processed, retry shortly")
	default:
		h.logger.Error("posting failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
