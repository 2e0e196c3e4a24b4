package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/pesan-antar/internal/backend"
	"github.com/noah-isme/pesan-antar/internal/cart"
	"github.com/noah-isme/pesan-antar/internal/common"
	"github.com/noah-isme/pesan-antar/internal/delivery"
	"github.com/noah-isme/pesan-antar/internal/pricing"
	"github.com/noah-isme/pesan-antar/internal/voucher"
)

// Handler exposes the checkout session over HTTP.
type Handler struct {
	Svc *Service
}

type appliedView struct {
	voucher.Record
	Amount pricing.Money `json:"amount"`
}

type summaryView struct {
	Cart                   any                    `json:"cart"`
	Destination            *Destination           `json:"destination,omitempty"`
	Quote                  *pricing.DeliveryQuote `json:"quote,omitempty"`
	Vouchers               []appliedView          `json:"vouchers"`
	Ineligible             []VoucherNotice        `json:"ineligible_vouchers,omitempty"`
	Subtotal               string                 `json:"subtotal"`
	DiscountOnSubtotal     string                 `json:"discount_on_subtotal"`
	DiscountOnShipping     string                 `json:"discount_on_shipping"`
	DeliveryFee            string                 `json:"delivery_fee"`
	AdjustedDeliveryFee    string                 `json:"adjusted_delivery_fee"`
	RiderTip               string                 `json:"rider_tip"`
	Total                  string                 `json:"total"`
	DeliveryFeeUnavailable bool                   `json:"delivery_fee_unavailable"`
}

func render(sum Summary) summaryView {
	amounts := make(map[string]pricing.Money, len(sum.Total.Lines))
	for _, line := range sum.Total.Lines {
		amounts[line.Code] = line.Amount
	}
	applied := make([]appliedView, 0, len(sum.Session.Vouchers))
	for _, v := range sum.Session.Vouchers.Ordered() {
		applied = append(applied, appliedView{Record: voucher.ToRecord(v), Amount: amounts[v.Code]})
	}
	t := sum.Total
	return summaryView{
		Cart:                   cart.View(sum.Cart),
		Destination:            sum.Session.Destination,
		Quote:                  sum.Session.CurrentQuote(sum.Cart),
		Vouchers:               applied,
		Ineligible:             sum.Ineligible,
		Subtotal:               pricing.Format(t.Subtotal),
		DiscountOnSubtotal:     pricing.Format(t.DiscountOnSubtotal),
		DiscountOnShipping:     pricing.Format(t.DiscountOnShipping),
		DeliveryFee:            pricing.Format(t.DeliveryFee),
		AdjustedDeliveryFee:    pricing.Format(t.AdjustedDeliveryFee),
		RiderTip:               pricing.Format(t.RiderTip),
		Total:                  pricing.Format(t.Total),
		DeliveryFeeUnavailable: sum.DeliveryFeeUnavailable,
	}
}

// Get handles GET /checkout.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	sum, err := h.Svc.View(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(sum)})
}

// SetAddress handles PUT /checkout/address.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload Destination
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	sum, err := h.Svc.SetAddress(r.Context(), userID, payload)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrInvalidDestination):
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		case errors.Is(err, delivery.ErrOutOfRange):
			common.JSONError(w, http.StatusUnprocessableEntity, "OUT_OF_RANGE", "This address is outside the restaurant's delivery area.", render(sum))
		case errors.Is(err, ErrDeliveryFeeUnavailable):
			common.JSONError(w, http.StatusServiceUnavailable, "DELIVERY_FEE_UNAVAILABLE", "Unable to calculate the delivery fee. Please try again.", map[string]any{"retryable": true, "checkout": render(sum)})
		default:
			writeError(w, err)
		}
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(sum)})
}

// SetTip handles PUT /checkout/tip.
func (h *Handler) SetTip(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload struct {
		RiderTip pricing.Money `json:"rider_tip"`
	}
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	sum, err := h.Svc.SetTip(r.Context(), userID, payload.RiderTip)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(sum)})
}

// ApplyVoucher handles POST /checkout/vouchers.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if strings.TrimSpace(payload.Code) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	sum, err := h.Svc.ApplyVoucher(r.Context(), userID, payload.Code)
	if err != nil {
		var rej *voucher.RejectedError
		if errors.As(err, &rej) || errors.Is(err, voucher.ErrBackendUnavailable) {
			voucher.WriteApplyError(w, err)
			return
		}
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(sum)})
}

// RemoveVoucher handles DELETE /checkout/vouchers/{type}.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	t, err := pricing.ParseVoucherType(chi.URLParam(r, "type"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	sum, err := h.Svc.RemoveVoucher(r.Context(), userID, t)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(sum)})
}

// Submit handles POST /checkout/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload SubmitInput
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	receipt, err := h.Svc.Submit(r.Context(), userID, payload)
	if err != nil {
		var rej *voucher.RejectedError
		switch {
		case errors.As(err, &rej):
			voucher.WriteApplyError(w, err)
		case errors.Is(err, ErrDeliveryFeeUnavailable):
			common.JSONError(w, http.StatusConflict, "DELIVERY_FEE_UNAVAILABLE", "Please select a delivery address.", nil)
		case errors.Is(err, ErrSubmissionFailed):
			message := "We couldn't place your order. Please try again."
			var apiErr *backend.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.Message != "" {
				message = apiErr.Message
			}
			common.JSONError(w, http.StatusBadGateway, "ORDER_SUBMISSION_FAILED", message, map[string]bool{"retryable": true})
		default:
			writeError(w, err)
		}
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": receipt})
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return userID, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "Your cart is empty.", nil)
	case errors.Is(err, ErrSubmitInProgress):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_IN_PROGRESS", "Your order is already being placed.", map[string]bool{"retryable": true})
	case errors.Is(err, ErrVoucherNotApplied):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, pricing.ErrNegativeTip):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrInvalidPaymentMethod):
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYMENT_METHOD", "payment_method must be one of cash, gcash, card", nil)
	default:
		common.WriteAppError(w, err)
	}
}
