package cart

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/pesan-antar/internal/common"
	"github.com/noah-isme/pesan-antar/internal/lock"
	"github.com/noah-isme/pesan-antar/internal/pricing"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type itemView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unit_price"`
	Quantity  int           `json:"quantity"`
	Subtotal  pricing.Money `json:"subtotal"`
}

type cartView struct {
	RestaurantID string     `json:"restaurant_id,omitempty"`
	Items        []itemView `json:"items"`
	Subtotal     string     `json:"subtotal"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// View renders a cart for responses.
func View(c Cart) any {
	items := make([]itemView, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, itemView{ID: it.ID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity, Subtotal: it.Subtotal()})
	}
	v := cartView{RestaurantID: c.RestaurantID, Items: items, Subtotal: pricing.Format(c.Subtotal())}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		v.UpdatedAt = &t
	}
	return v
}

// Get handles GET /cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": View(c)})
}

// AddItem handles POST /cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload AddInput
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	c, err := h.Svc.Add(r.Context(), userID, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": View(c)})
}

// UpdateItem handles PATCH /cart/items/{itemID}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	c, err := h.Svc.UpdateQty(r.Context(), userID, chi.URLParam(r, "itemID"), payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": View(c)})
}

// RemoveItem handles DELETE /cart/items/{itemID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Remove(r.Context(), userID, chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": View(c)})
}

// Clear handles DELETE /cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return userID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRestaurantMismatch):
		common.JSONError(w, http.StatusConflict, "RESTAURANT_MISMATCH", "Your cart has items from another restaurant. Clear it to order from here.", nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrInvalidItem):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrMenuItemUnavailable):
		common.JSONError(w, http.StatusUnprocessableEntity, "ITEM_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, lock.ErrTimeout):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "Your order is being placed. Please try again in a moment.", nil)
	default:
		common.WriteAppError(w, err)
	}
}
