// Command order-sim is a stub order service for local development and
// black-box tests. It serves a small set of seeded orders and accepts settle
// calls with the same status semantics as the real backend: 400 on a bad
// payload, 404 on unknown orders, 409 on double settlement.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type orderRecord struct {
	ID       string          `json:"id"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
	Paid     bool            `json:"paid"`
	PaidAt   *time.Time      `json:"paidAt,omitempty"`
	Splits   []splitRecord   `json:"splitPayments,omitempty"`
}

type splitRecord struct {
	Currency string `json:"currency"`
	Method   string `json:"method"`
	Amount   string `json:"amount"`
}

type settleRequest struct {
	Currency       string        `json:"currency"`
	RielAmount     *string       `json:"rielAmount"`
	SplitBill      bool          `json:"splitBill"`
	SplitAmounts   []splitRecord `json:"splitAmounts"`
	PaymentMethods []splitRecord `json:"paymentMethods"`
	MixedPayments  bool          `json:"mixedPayments"`
	MixedCurrency  bool          `json:"mixedCurrency"`
}

type simulator struct {
	mu     sync.Mutex
	orders map[string]*orderRecord
}

func defaultOrders() map[string]*orderRecord {
	mk := func(id, subtotal, tax, discount, total string) *orderRecord {
		return &orderRecord{
			ID:       id,
			Subtotal: decimal.RequireFromString(subtotal),
			Tax:      decimal.RequireFromString(tax),
			Discount: decimal.RequireFromString(discount),
			Total:    decimal.RequireFromString(total),
			Currency: "USD",
		}
	}
	return map[string]*orderRecord{
		"1001": mk("1001", "29.00", "2.90", "0", "31.90"),
		"1002": mk("1002", "54.00", "5.40", "5.00", "54.40"),
		"1003": mk("1003", "8.50", "0.85", "0", "9.35"),
		"1004": mk("1004", "12.00", "1.20", "0", "13.20"),
		"1005": mk("1005", "20.00", "2.00", "2.00", "20.00"),
	}
}

func loadOrders(path string) (map[string]*orderRecord, error) {
	if path == "" {
		return defaultOrders(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []*orderRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	orders := make(map[string]*orderRecord, len(list))
	for _, o := range list {
		orders[o.ID] = o
	}
	return orders, nil
}

func (s *simulator) getOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[mux.Vars(r)["id"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *simulator) settleOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[mux.Vars(r)["id"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "order not found"})
		return
	}
	if o.Paid {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "order already paid"})
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"invalid payload"}})
		return
	}

	panels := req.PaymentMethods
	if req.SplitBill {
		panels = req.SplitAmounts
	}
	if len(panels) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"no payment panels supplied"}})
		return
	}

	now := time.Now().UTC()
	o.Paid = true
	o.PaidAt = &now
	if req.SplitBill {
		o.Splits = req.SplitAmounts
	}

	slog.Info("order settled",
		slog.String("order_id", o.ID),
		slog.String("currency", req.Currency),
		slog.Bool("split", req.SplitBill),
		slog.Bool("mixed_currency", req.MixedCurrency),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"receiptId": uuid.New().String(),
		"paidAt":    now.Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	var (
		addr       string
		ordersFile string
	)

	flag.StringVar(&addr, "addr", "0.0.0.0:8080", "listen address")
	flag.StringVar(&ordersFile, "orders-file", "", "path to a JSON file of seed orders (built-in samples when empty)")
	flag.Parse()

	orders, err := loadOrders(ordersFile)
	if err != nil {
		slog.Error("load orders", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sim := &simulator{orders: orders}

	r := mux.NewRouter()
	r.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("/api/orders/{id}", sim.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{id}/settle", sim.settleOrder).Methods(http.MethodPost)

	slog.Info("order-sim listening", slog.String("addr", addr), slog.Int("orders", len(orders)))
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
