// Package handler exposes the settlement engine to POS terminals over REST.
package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sokrith/pos-settlement/internal/domain/order"
	"github.com/sokrith/pos-settlement/internal/domain/payment"
)

// Handler wires the payment service and order gateway to the HTTP surface.
type Handler struct {
	payments *payment.Service
	orders   order.Gateway
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(payments *payment.Service, orders order.Gateway) *Handler {
	return &Handler{
		payments: payments,
		orders:   orders,
	}
}

// Router builds the API route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/orders/{id}/payment", h.getPayment).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/payment", h.cancelPayment).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/payment/panels", h.addPanel).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/payment/panels", h.setPanels).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/payment/panels/{panelID}", h.updatePanel).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/payment/panels/{panelID}", h.removePanel).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/payment/mode", h.switchMode).Methods(http.MethodPut)
	api.HandleFunc("/orders/{id}/payment/receipt/draft", h.draftReceipt).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/payment/commit", h.commit).Methods(http.MethodPost)

	return r
}

// fetchOrder resolves the order record every endpoint operates on.
func (h *Handler) fetchOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	id := mux.Vars(r)["id"]
	o, err := h.orders.Fetch(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return o, true
}
