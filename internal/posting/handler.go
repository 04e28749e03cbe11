package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brioche-erp/brioche/internal/ledger"
	"github.com/brioche-erp/brioche/internal/platform/httpx"
	"github.com/brioche-erp/brioche/internal/stock"
)

// Handler exposes the non-order postings: expenses, owner flows, transfers
// between cash accounts and inventory purchases.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validator: validator.New()}
}

// MountRoutes registers posting routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/expenses", h.postExpense)
	r.Post("/investments", h.postInvestment)
	r.Post("/withdrawals", h.postWithdrawal)
	r.Post("/transfers", h.postInternalTransfer)
	r.Post("/purchases", h.postPurchase)
}

type simpleEntryRequest struct {
	Reference   string `json:"reference" validate:"required"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`

	// Account codes; which ones apply depends on the posting.
	ExpenseAccount string `json:"expense_account"`
	PaidFrom       string `json:"paid_from_account"`
	ReceivedTo     string `json:"received_to_account"`
	FromAccount    string `json:"from_account"`
	ToAccount      string `json:"to_account"`
}

type purchaseRequest struct {
	PurchaseID     int64  `json:"purchase_id" validate:"gt=0"`
	ItemCode       string `json:"item_code" validate:"required"`
	LocationCode   string `json:"location_code" validate:"required"`
	Qty            int64  `json:"qty" validate:"gt=0"`
	TotalCostCents int64  `json:"total_cost_cents" validate:"gte=0"`
	CostType       string `json:"cost_type" validate:"required,oneof=ingredients packing kitchen"`
	PaidFrom       string `json:"paid_from_account" validate:"required"`
	Reference      string `json:"reference" validate:"required"`
}

type entryResponse struct {
	EntryID    int64  `json:"entry_id"`
	EntryType  string `json:"entry_type"`
	Reference  string `json:"reference"`
	TotalCents int64  `json:"total_cents"`
}

func (h *Handler) postExpense(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSimple(w, r)
	if !ok {
		return
	}
	if req.ExpenseAccount == "" || req.PaidFrom == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expense_account and paid_from_account required")
		return
	}
	entry, err := h.engine.PostExpense(r.Context(), req.Reference, req.Description,
		req.ExpenseAccount, req.PaidFrom, req.AmountCents, parseDate(req.Date))
	h.respondEntry(w, r, entry, err)
}

func (h *Handler) postInvestment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSimple(w, r)
	if !ok {
		return
	}
	if req.ReceivedTo == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "received_to_account required")
		return
	}
	entry, err := h.engine.PostInvestment(r.Context(), req.Reference, req.Description,
		req.ReceivedTo, req.AmountCents, parseDate(req.Date))
	h.respondEntry(w, r, entry, err)
}

func (h *Handler) postWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSimple(w, r)
	if !ok {
		return
	}
	if req.PaidFrom == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paid_from_account required")
		return
	}
	entry, err := h.engine.PostWithdrawal(r.Context(), req.Reference, req.Description,
		req.PaidFrom, req.AmountCents, parseDate(req.Date))
	h.respondEntry(w, r, entry, err)
}

func (h *Handler) postInternalTransfer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSimple(w, r)
	if !ok {
		return
	}
	if req.FromAccount == "" || req.ToAccount == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from_account and to_account required")
		return
	}
	entry, err := h.engine.PostInternalTransfer(r.Context(), req.Reference, req.Description,
		req.FromAccount, req.ToAccount, req.AmountCents, parseDate(req.Date))
	h.respondEntry(w, r, entry, err)
}

func (h *Handler) postPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.engine.PostInventoryPurchase(r.Context(), PurchasePosting{
		PurchaseID:          req.PurchaseID,
		ItemCode:            req.ItemCode,
		LocationCode:        req.LocationCode,
		Qty:                 req.Qty,
		TotalCostCents:      req.TotalCostCents,
		CostType:            CostType(req.CostType),
		PaidFromAccountCode: req.PaidFrom,
		Reference:           req.Reference,
	})
	h.respondEntry(w, r, entry, err)
}

func (h *Handler) decodeSimple(w http.ResponseWriter, r *http.Request) (simpleEntryRequest, bool) {
	var req simpleEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return req, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondEntry(w http.ResponseWriter, r *http.Request, entry ledger.JournalEntry, err error) {
	if err != nil {
		switch {
		case ledger.IsValidationError(err):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ErrRoleNotMapped):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
		case errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, stock.ErrInvalidCost):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("posting failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, entryResponse{
		EntryID:    entry.ID,
		EntryType:  string(entry.Type),
		Reference:  entry.Reference,
		TotalCents: entry.Total(),
	})
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return date
}
