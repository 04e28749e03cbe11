package recon

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brioche-erp/brioche/internal/platform/httpx"
	"github.com/brioche-erp/brioche/internal/posting"
)

// Handler exposes verification and repair over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/verify", h.verify)
	r.Get("/verify/{check}", h.verifyOne)
	r.Post("/repair/{check}", h.repair)
}

type verifyResponse struct {
	OK      bool          `json:"ok"`
	Results []CheckResult `json:"results"`
}

type repairResponse struct {
	Applied int            `json:"applied"`
	Actions []RepairAction `json:"actions"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.RunVerification(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ok := true
	for _, res := range results {
		if !res.OK {
			ok = false
			break
		}
	}
	httpx.JSON(w, http.StatusOK, verifyResponse{OK: ok, Results: results})
}

func (h *Handler) verifyOne(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunCheck(r.Context(), CheckName(chi.URLParam(r, "check")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) repair(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.RunRepair(r.Context(), CheckName(chi.URLParam(r, "check")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, repairResponse{Applied: len(actions), Actions: actions})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownCheck):
		httpx.Problem(w, http.StatusNotFound, "Unknown Check", err.Error())
	case errors.Is(err, ErrNoRepair):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Automated Repair", err.Error())
	case errors.Is(err, posting.ErrRoleNotMapped):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unmapped Role", err.Error())
	default:
		h.logger.Error("reconciliation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
