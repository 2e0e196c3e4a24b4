package voucher

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pesan-antar/internal/common"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// Handler exposes voucher listing, apply and administrative endpoints.
type Handler struct {
	Backend        Backend
	Admin          *Service
	CurrencySymbol string
}

type listItem struct {
	Record
	Eligible  *bool            `json:"eligible,omitempty"`
	Shortfall *decimal.Decimal `json:"shortfall,omitempty"`
	Message   string           `json:"message,omitempty"`
}

type applyPayload struct {
	Code       string          `json:"code"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

// List returns the available vouchers. With ?subtotal= each entry is annotated with its
// minimum-order eligibility and shortfall message.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Backend == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher backend not configured", nil)
		return
	}
	var subtotal *decimal.Decimal
	if raw := strings.TrimSpace(r.URL.Query().Get("subtotal")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil || parsed.IsNegative() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "subtotal must be a non-negative decimal", nil)
			return
		}
		subtotal = &parsed
	}
	vouchers, err := h.Backend.List(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadGateway, "VOUCHER_BACKEND_UNAVAILABLE", "unable to load vouchers", nil)
		return
	}
	items := make([]listItem, 0, len(vouchers))
	for _, v := range vouchers {
		item := listItem{Record: ToRecord(v)}
		if subtotal != nil {
			ok, shortfall := pricing.IsVoucherEligible(v, *subtotal)
			item.Eligible = &ok
			if !ok {
				item.Shortfall = &shortfall
				item.Message = pricing.ShortfallMessage(h.symbol(), shortfall)
			}
		}
		items = append(items, item)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Apply validates a code against an order total without changing checkout state.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	if h.Backend == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "voucher backend not configured", nil)
		return
	}
	var payload applyPayload
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if strings.TrimSpace(payload.Code) == "" || payload.OrderTotal.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code and a non-negative order_total are required", nil)
		return
	}
	v, err := h.Backend.Apply(r.Context(), payload.Code, payload.OrderTotal)
	if err != nil {
		WriteApplyError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToRecord(v)})
}

// Create inserts a new voucher. Only available with the local backend.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Admin == nil {
		common.JSONError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "voucher administration is handled by the remote backend", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(w, r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	v, err := h.Admin.Create(r.Context(), in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": ToRecord(v)})
}

// Update mutates an existing voucher identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Admin == nil {
		common.JSONError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "voucher administration is handled by the remote backend", nil)
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(w, r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	v, err := h.Admin.Update(r.Context(), code, in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToRecord(v)})
}

// WriteApplyError renders a voucher apply failure: 422 VOUCHER_INELIGIBLE with the shortfall,
// 422 VOUCHER_INVALID_CODE with the backend message, or 503 when the backend is down.
func WriteApplyError(w http.ResponseWriter, err error) {
	var rej *RejectedError
	switch {
	case errors.As(err, &rej):
		code := "VOUCHER_INVALID_CODE"
		var details any
		if errors.Is(rej, ErrMinimumOrderUnmet) {
			code = "VOUCHER_INELIGIBLE"
			if rej.Shortfall != nil {
				details = map[string]string{"shortfall": pricing.Format(*rej.Shortfall)}
			}
		}
		common.JSONError(w, http.StatusUnprocessableEntity, code, rej.Message, details)
	case errors.Is(err, ErrBackendUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "VOUCHER_BACKEND_UNAVAILABLE", "Vouchers are temporarily unavailable. Please try again.", map[string]bool{"retryable": true})
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to apply voucher", nil)
	}
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCodeExists):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "voucher code already exists", nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "voucher not found", nil)
	case errors.Is(err, pricing.ErrInvalidVoucher),
		errors.Is(err, pricing.ErrInvalidDiscount),
		errors.Is(err, pricing.ErrDiscountMissing),
		errors.Is(err, pricing.ErrDiscountConflict):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save voucher", nil)
	}
}

func (h *Handler) symbol() string {
	if h.CurrencySymbol != "" {
		return h.CurrencySymbol
	}
	return "₱"
}
