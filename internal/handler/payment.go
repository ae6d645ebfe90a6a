package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/sokrith/pos-settlement/internal/domain/order"
	"github.com/sokrith/pos-settlement/internal/domain/payment"
)

// reconciliationResponse is the derived state the terminal re-renders on
// every panel change.
type reconciliationResponse struct {
	TotalTenderedUSD decimal.Decimal `json:"totalTenderedUsd"`
	RemainingUSD     decimal.Decimal `json:"remainingUsd"`
	Errors           []string        `json:"errors"`
	CanCommit        bool            `json:"canCommit"`
}

type sessionResponse struct {
	OrderID        string                 `json:"orderId"`
	Mode           payment.Mode           `json:"mode"`
	Panels         []payment.Panel        `json:"panels"`
	Reconciliation reconciliationResponse `json:"reconciliation"`
}

type allocationResponse struct {
	AmountUSD            decimal.Decimal  `json:"amountUsd"`
	ProportionalTax      decimal.Decimal  `json:"proportionalTax"`
	ProportionalDiscount decimal.Decimal  `json:"proportionalDiscount"`
	PaymentMethods       []payment.Method `json:"paymentMethods"`
}

type receiptResponse struct {
	OrderID      string               `json:"orderId"`
	Draft        bool                 `json:"draft"`
	IssuedAt     time.Time            `json:"issuedAt"`
	Subtotal     decimal.Decimal      `json:"subtotal"`
	Tax          decimal.Decimal      `json:"tax"`
	Discount     decimal.Decimal      `json:"discount"`
	Total        decimal.Decimal      `json:"total"`
	TotalRiel    decimal.Decimal      `json:"totalRiel"`
	TenderedUSD  decimal.Decimal      `json:"tenderedUsd"`
	RemainingUSD decimal.Decimal      `json:"remainingUsd"`
	Panels       []payment.Panel      `json:"panels,omitempty"`
	Splits       []allocationResponse `json:"splits,omitempty"`
}

type commitResponse struct {
	ReceiptID string          `json:"receiptId"`
	Receipt   receiptResponse `json:"receipt"`
}

func newSessionResponse(sess *payment.Session, rec payment.Reconciliation) sessionResponse {
	errs := rec.Errors
	if errs == nil {
		errs = []string{}
	}
	return sessionResponse{
		OrderID: sess.OrderID,
		Mode:    sess.Mode,
		Panels:  sess.ActivePanels(),
		Reconciliation: reconciliationResponse{
			TotalTenderedUSD: rec.TotalTenderedUSD,
			RemainingUSD:     rec.RemainingUSD,
			Errors:           errs,
			CanCommit:        rec.CanCommit(),
		},
	}
}

func newReceiptResponse(rc *payment.Receipt) receiptResponse {
	splits := make([]allocationResponse, len(rc.Splits))
	for i, a := range rc.Splits {
		splits[i] = allocationResponse{
			AmountUSD:            a.AmountUSD,
			ProportionalTax:      a.Tax,
			ProportionalDiscount: a.Discount,
			PaymentMethods:       a.Methods,
		}
	}
	return receiptResponse{
		OrderID:      rc.OrderID,
		Draft:        rc.Draft,
		IssuedAt:     rc.IssuedAt,
		Subtotal:     rc.Subtotal,
		Tax:          rc.Tax,
		Discount:     rc.Discount,
		Total:        rc.Total,
		TotalRiel:    rc.TotalRiel,
		TenderedUSD:  rc.TenderedUSD,
		RemainingUSD: rc.RemainingUSD,
		Panels:       rc.Panels,
		Splits:       splits,
	}
}

// getPayment returns the order's session (restored or freshly seeded) with
// its live reconciliation.
func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	sess, rec, err := h.payments.Reconcile(r.Context(), o)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, rec))
}

func (h *Handler) addPanel(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	sess, rec, err := h.payments.AddPanel(r.Context(), o)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSessionResponse(sess, rec))
}

type updatePanelRequest struct {
	Currency *string `json:"currency"`
	Method   *string `json:"method"`
	Amount   *string `json:"amount"`
}

func (h *Handler) updatePanel(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	panelID, err := strconv.Atoi(mux.Vars(r)["panelID"])
	if err != nil {
		badRequest(w, "panel id must be an integer")
		return
	}

	var req updatePanelRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	upd := payment.PanelUpdate{Amount: req.Amount}
	if req.Currency != nil {
		c := payment.Currency(*req.Currency)
		if !c.Valid() {
			badRequest(w, "currency must be USD or Riel")
			return
		}
		upd.Currency = &c
	}
	if req.Method != nil {
		m := payment.Method(*req.Method)
		if !m.Valid() {
			badRequest(w, "method must be cash, card or qr")
			return
		}
		upd.Method = &m
	}

	sess, rec, err := h.payments.UpdatePanel(r.Context(), o, panelID, upd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, rec))
}

type setPanelsRequest struct {
	Panels []struct {
		Currency string `json:"currency"`
		Method   string `json:"method"`
		Amount   string `json:"amount"`
	} `json:"panels"`
}

// setPanels replaces the active panel list wholesale, renumbering panel IDs.
func (h *Handler) setPanels(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	var req setPanelsRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	panels := make([]payment.Panel, len(req.Panels))
	for i, p := range req.Panels {
		c, m := payment.Currency(p.Currency), payment.Method(p.Method)
		if !c.Valid() {
			badRequest(w, "currency must be USD or Riel")
			return
		}
		if !m.Valid() {
			badRequest(w, "method must be cash, card or qr")
			return
		}
		panels[i] = payment.Panel{ID: i + 1, Currency: c, Method: m, Amount: p.Amount}
	}

	sess, rec, err := h.payments.SetPanels(r.Context(), o, panels)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, rec))
}

func (h *Handler) removePanel(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	panelID, err := strconv.Atoi(mux.Vars(r)["panelID"])
	if err != nil {
		badRequest(w, "panel id must be an integer")
		return
	}

	sess, rec, err := h.payments.RemovePanel(r.Context(), o, panelID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, rec))
}

type switchModeRequest struct {
	Mode string `json:"mode"`
}

func (h *Handler) switchMode(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	var req switchModeRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	mode := payment.Mode(req.Mode)
	if !mode.Valid() {
		badRequest(w, "mode must be full or split")
		return
	}

	sess, rec, err := h.payments.SwitchMode(r.Context(), o, mode)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, rec))
}

// draftReceipt renders a receipt preview from the uncommitted session.
func (h *Handler) draftReceipt(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}

	// An already-paid order gets its authoritative final receipt instead.
	if o.Paid {
		respondJSON(w, http.StatusOK, newReceiptResponse(payment.FinalReceipt(o, h.payments.Rate())))
		return
	}

	receipt, err := h.payments.Draft(r.Context(), o)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newReceiptResponse(receipt))
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	o, ok := h.fetchOrder(w, r)
	if !ok {
		return
	}
	if o.Paid {
		respondError(w, r, order.ErrAlreadyPaid)
		return
	}

	res, err := h.payments.Commit(r.Context(), o)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, commitResponse{
		ReceiptID: res.ReceiptID,
		Receipt:   newReceiptResponse(res.Receipt),
	})
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.payments.Cancel(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
