package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
	"github.com/rl1809/timed-flash-sale/internal/core/service"
)

// UserIDHeader carries the caller identity resolved by the auth layer in front
// of this service.
const UserIDHeader = "X-User-ID"

type HTTPHandler struct {
	saleService  *service.SaleService
	orderService *service.OrderService
	logger       zerolog.Logger
}

type CreateSaleHTTPRequest struct {
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	TotalStock *int      `json:"totalStock"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(saleService *service.SaleService, orderService *service.OrderService, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		saleService:  saleService,
		orderService: orderService,
		logger:       logger.With().Str("component", "http").Logger(),
	}
}

func (h *HTTPHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.TotalStock == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "totalStock is required"})
		return
	}

	sale, err := h.saleService.CreateSale(r.Context(), req.StartTime, req.EndTime, *req.TotalStock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"flashSale": sale})
}

func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.saleService.CurrentStatus(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if res.Status == domain.SaleStatusNone {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":  "no flash sales found",
			"status": res.Status,
		})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user identity"})
		return
	}

	order, err := h.orderService.Purchase(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user identity"})
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.saleService.Ping(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	var de *domain.Error
	errors.As(err, &de)
	writeJSON(w, httpStatus(kind), errorResponse{Error: de.Message})
}

func httpStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindOverlap, domain.KindAlreadyPurchased:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotActive:
		return http.StatusForbidden
	case domain.KindOutOfStock:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
