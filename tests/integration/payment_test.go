//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
)

// Orders 1001-1005 are seeded by the order-sim service:
//
//	1001: total 31.90
//	1002: total 54.40
//	1003: total 9.35
//	1004: total 13.20
//	1005: total 20.00

func TestPaymentSession_Seeded(t *testing.T) {
	resp := doGet(t, "/api/orders/1003/payment")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	s := decodeJSON[sessionResponse](t, resp)
	if s.Mode != "full" {
		t.Fatalf("expected full mode, got %q", s.Mode)
	}
	if len(s.Panels) != 1 {
		t.Fatalf("expected 1 panel, got %d", len(s.Panels))
	}
	if s.Panels[0].Amount != "9.35" {
		t.Fatalf("expected prefilled amount 9.35, got %q", s.Panels[0].Amount)
	}
	if !s.Reconciliation.CanCommit {
		t.Fatalf("prefilled session should be committable: %+v", s.Reconciliation)
	}
}

func TestPaymentSession_UnknownOrder(t *testing.T) {
	resp := doGet(t, "/api/orders/no-such-order/payment")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPayment_EditReconcileCommit(t *testing.T) {
	// Session seeds with the full amount prefilled.
	resp := doGet(t, "/api/orders/1001/payment")
	s := decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()
	panelID := s.Panels[0].ID

	// Underpay: commit must be blocked without touching the backend.
	resp = do(t, http.MethodPatch, fmt.Sprintf("/api/orders/1001/payment/panels/%d", panelID),
		map[string]string{"amount": "10"})
	s = decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()
	if s.Reconciliation.CanCommit {
		t.Fatal("underpaid session must not be committable")
	}

	resp = do(t, http.MethodPost, "/api/orders/1001/payment/commit", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blocked commit, got %d", resp.StatusCode)
	}
	errBody := decodeJSON[errorResponse](t, resp)
	resp.Body.Close()
	if len(errBody.Errors) == 0 {
		t.Fatal("blocked commit should list reconciliation errors")
	}

	// Pay in Riel: 130790 / 4100 = 31.90 exactly covers the order.
	resp = do(t, http.MethodPatch, fmt.Sprintf("/api/orders/1001/payment/panels/%d", panelID),
		map[string]string{"currency": "Riel", "amount": "130790"})
	s = decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()
	if !s.Reconciliation.CanCommit {
		t.Fatalf("expected committable session, got %+v", s.Reconciliation)
	}

	resp = do(t, http.MethodPost, "/api/orders/1001/payment/commit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on commit, got %d", resp.StatusCode)
	}
	commit := decodeJSON[commitResponse](t, resp)
	resp.Body.Close()
	if commit.ReceiptID == "" {
		t.Fatal("expected a receipt id")
	}

	// A second commit must surface the backend conflict.
	resp = do(t, http.MethodPost, "/api/orders/1001/payment/commit", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double commit, got %d", resp.StatusCode)
	}
}

func TestPayment_SplitFlow(t *testing.T) {
	resp := do(t, http.MethodPut, "/api/orders/1002/payment/mode", map[string]string{"mode": "split"})
	s := decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(s.Panels) != 2 {
		t.Fatalf("expected 2 split panels, got %d", len(s.Panels))
	}
	// Seeded halves cover the order exactly.
	if !s.Reconciliation.CanCommit {
		t.Fatalf("seeded split should be committable: %+v", s.Reconciliation)
	}

	// Removing down to one panel is allowed; removing the last is not.
	resp = do(t, http.MethodDelete, fmt.Sprintf("/api/orders/1002/payment/panels/%d", s.Panels[1].ID), nil)
	s = decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()
	if len(s.Panels) != 1 {
		t.Fatalf("expected 1 panel after removal, got %d", len(s.Panels))
	}

	resp = do(t, http.MethodDelete, fmt.Sprintf("/api/orders/1002/payment/panels/%d", s.Panels[0].ID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 removing last panel, got %d", resp.StatusCode)
	}
}

func TestPayment_CorruptSessionReseeded(t *testing.T) {
	// Two flavors of damage: a row that no longer unmarshals into a session,
	// and one that decodes fine but carries no panels.
	execSQL(t, `INSERT INTO payment_sessions (order_id, state) VALUES ('1004', '"garbage"')
		ON CONFLICT (order_id) DO UPDATE SET state = EXCLUDED.state`)
	execSQL(t, `INSERT INTO payment_sessions (order_id, state) VALUES ('1005', '{}')
		ON CONFLICT (order_id) DO UPDATE SET state = EXCLUDED.state`)

	for _, tt := range []struct {
		orderID string
		total   string
	}{
		{"1004", "13.20"},
		{"1005", "20.00"},
	} {
		resp := doGet(t, "/api/orders/"+tt.orderID+"/payment")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("order %s: expected 200, got %d", tt.orderID, resp.StatusCode)
		}
		s := decodeJSON[sessionResponse](t, resp)
		resp.Body.Close()

		// The damaged row is dropped and a fresh session takes its place.
		if s.Mode != "full" {
			t.Fatalf("order %s: expected full mode, got %q", tt.orderID, s.Mode)
		}
		if len(s.Panels) != 1 || s.Panels[0].Amount != tt.total {
			t.Fatalf("order %s: expected one panel prefilled with %s, got %+v",
				tt.orderID, tt.total, s.Panels)
		}
		if !s.Reconciliation.CanCommit {
			t.Fatalf("order %s: reseeded session should be committable: %+v",
				tt.orderID, s.Reconciliation)
		}
	}
}

func TestPayment_CancelDiscardsEdits(t *testing.T) {
	resp := doGet(t, "/api/orders/1003/payment")
	s := decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()
	panelID := s.Panels[0].ID

	resp = do(t, http.MethodPatch, fmt.Sprintf("/api/orders/1003/payment/panels/%d", panelID),
		map[string]string{"amount": "1.23"})
	resp.Body.Close()

	resp = do(t, http.MethodDelete, "/api/orders/1003/payment", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on cancel, got %d", resp.StatusCode)
	}

	// A fresh session is reseeded with the order total.
	resp = doGet(t, "/api/orders/1003/payment")
	s = decodeJSON[sessionResponse](t, resp)
	resp.Body.Close()
	if s.Panels[0].Amount != "9.35" {
		t.Fatalf("expected reseeded amount 9.35, got %q", s.Panels[0].Amount)
	}
}
