package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sokrith/pos-settlement/internal/domain/order"
)

// PreconditionError is returned when a commit is rejected locally, before any
// network call, because reconciliation reports errors or an outstanding
// balance.
type PreconditionError struct {
	Errors       []string
	RemainingUSD decimal.Decimal
}

func (e *PreconditionError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("payment not ready: %s", strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("payment not ready: $%s outstanding", e.RemainingUSD.StringFixed(2))
}

// CommitResult is the outcome of a successful commit.
type CommitResult struct {
	ReceiptID string
	Receipt   *Receipt
}

// Service orchestrates the settlement flow: session lifecycle, panel
// mutations with synchronous auto-save, draft receipts, and the commit
// handshake with the order service.
type Service struct {
	store   Store
	gateway order.Gateway
	rate    decimal.Decimal

	// commits collapses concurrent commit attempts for the same order into
	// one in-flight settle call; late callers share its outcome.
	commits singleflight.Group
}

// NewService creates a settlement Service. rate is the configured riel/USD
// exchange rate used for the lifetime of this service instance.
func NewService(store Store, gateway order.Gateway, rate decimal.Decimal) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		rate:    rate,
	}
}

// Rate returns the configured exchange rate.
func (s *Service) Rate() decimal.Decimal {
	return s.rate
}

// Session returns the in-progress session for the order, restoring the
// persisted one when present and seeding defaults otherwise. A store read
// failure counts as "no session"; losing an auto-save is recoverable, failing
// the payment screen is not.
func (s *Service) Session(ctx context.Context, o *order.Order) (*Session, error) {
	if err := validateOrder(o); err != nil {
		return nil, err
	}

	sess, err := s.store.Load(ctx, o.ID)
	if err != nil {
		zctx.From(ctx).Warn("Session load failed, reseeding",
			zap.String("order_id", o.ID), zap.Error(err))
		sess = nil
	}
	if sess == nil {
		sess = NewSession(o.ID, o.Total)
		s.persist(ctx, sess)
		return sess, nil
	}
	sess.OrderID = o.ID

	// Smart default: a lone untouched FULL panel picks up the whole total.
	// Never overwrites anything the cashier typed.
	if sess.Mode == ModeFull && len(sess.FullPanels) == 1 && sess.FullPanels[0].Amount == "" {
		sess.FullPanels[0].Amount = o.Total.StringFixed(2)
		s.persist(ctx, sess)
	}
	return sess, nil
}

// AddPanel appends a fresh panel to the active list and auto-saves.
func (s *Service) AddPanel(ctx context.Context, o *order.Order) (*Session, Reconciliation, error) {
	return s.mutate(ctx, o, func(sess *Session) error {
		sess.AddPanel()
		return nil
	})
}

// RemovePanel removes a panel from the active list and auto-saves. Removing
// the last panel fails with ErrLastPanel.
func (s *Service) RemovePanel(ctx context.Context, o *order.Order, panelID int) (*Session, Reconciliation, error) {
	return s.mutate(ctx, o, func(sess *Session) error {
		return sess.RemovePanel(panelID)
	})
}

// UpdatePanel applies a field update to a panel and auto-saves.
func (s *Service) UpdatePanel(ctx context.Context, o *order.Order, panelID int, upd PanelUpdate) (*Session, Reconciliation, error) {
	return s.mutate(ctx, o, func(sess *Session) error {
		return sess.UpdatePanel(panelID, upd)
	})
}

// SetPanels replaces the active panel list and auto-saves.
func (s *Service) SetPanels(ctx context.Context, o *order.Order, panels []Panel) (*Session, Reconciliation, error) {
	return s.mutate(ctx, o, func(sess *Session) error {
		return sess.SetPanels(panels)
	})
}

// SwitchMode flips between FULL and SPLIT settlement and auto-saves. The
// inactive list keeps its state.
func (s *Service) SwitchMode(ctx context.Context, o *order.Order, mode Mode) (*Session, Reconciliation, error) {
	return s.mutate(ctx, o, func(sess *Session) error {
		sess.SwitchMode(mode)
		return nil
	})
}

// Reconcile computes the live reconciliation of the order's session.
func (s *Service) Reconcile(ctx context.Context, o *order.Order) (*Session, Reconciliation, error) {
	sess, err := s.Session(ctx, o)
	if err != nil {
		return nil, Reconciliation{}, err
	}
	return sess, Reconcile(sess.ActivePanels(), o.Total, s.rate), nil
}

// Draft renders a draft receipt from the current uncommitted session.
// Nothing is committed and the session is left untouched.
func (s *Service) Draft(ctx context.Context, o *order.Order) (*Receipt, error) {
	sess, rec, err := s.Reconcile(ctx, o)
	if err != nil {
		return nil, err
	}
	return draftReceipt(o, sess, rec, s.rate), nil
}

// Commit performs the final payment. It re-runs reconciliation and rejects
// locally, without a network call, unless the balance is settled with no
// errors. Concurrent commits for one order share a single settle call.
//
// The session is cleared on success and on an already-paid conflict (a retry
// can never succeed); it is preserved on every other failure so the cashier's
// input survives for retry.
func (s *Service) Commit(ctx context.Context, o *order.Order) (*CommitResult, error) {
	sess, rec, err := s.Reconcile(ctx, o)
	if err != nil {
		return nil, err
	}
	if !rec.CanCommit() {
		return nil, &PreconditionError{Errors: rec.Errors, RemainingUSD: rec.RemainingUSD}
	}

	v, err, _ := s.commits.Do(o.ID, func() (any, error) {
		res, err := s.gateway.Settle(ctx, o.ID, buildSettleRequest(sess))
		if err != nil {
			if errors.Is(err, order.ErrAlreadyPaid) {
				s.discard(ctx, o.ID)
			}
			return nil, err
		}

		s.discard(ctx, o.ID)

		paid := *o
		paid.Paid = true
		paid.PaidAt = res.PaidAt
		if sess.Mode == ModeSplit {
			paid.Splits = recordFromPanels(sess.SplitPanels)
		}
		return &CommitResult{
			ReceiptID: res.ReceiptID,
			Receipt:   FinalReceipt(&paid, s.rate),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CommitResult), nil
}

// Cancel clears the persisted session for an order. In-memory terminal state
// is the terminal's problem; nothing was committed, so there is no backend
// call to make.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	if err := s.store.Clear(ctx, orderID); err != nil {
		return errors.Wrap(err, "clear session")
	}
	return nil
}

// mutate runs fn against the order's session, then auto-saves and
// re-reconciles. The save happens synchronously with the mutation: an
// unexpected terminal reload must never lose cashier input mid-entry.
func (s *Service) mutate(ctx context.Context, o *order.Order, fn func(*Session) error) (*Session, Reconciliation, error) {
	sess, err := s.Session(ctx, o)
	if err != nil {
		return nil, Reconciliation{}, err
	}
	if err := fn(sess); err != nil {
		return nil, Reconciliation{}, err
	}
	sess.Touch()
	s.persist(ctx, sess)
	return sess, Reconcile(sess.ActivePanels(), o.Total, s.rate), nil
}

// persist auto-saves best-effort: a failed save is logged, never surfaced.
func (s *Service) persist(ctx context.Context, sess *Session) {
	if err := s.store.Save(ctx, sess); err != nil {
		zctx.From(ctx).Warn("Session auto-save failed",
			zap.String("order_id", sess.OrderID), zap.Error(err))
	}
}

func (s *Service) discard(ctx context.Context, orderID string) {
	if err := s.store.Clear(ctx, orderID); err != nil {
		zctx.From(ctx).Warn("Session clear failed",
			zap.String("order_id", orderID), zap.Error(err))
	}
}

func validateOrder(o *order.Order) error {
	if o == nil || o.ID == "" || !o.Total.IsPositive() {
		return order.ErrIncomplete
	}
	return nil
}

// buildSettleRequest maps the active panel set into the settle payload, the
// single source of truth for what currency/method/split was used.
func buildSettleRequest(sess *Session) order.SettleRequest {
	active := sess.ActivePanels()
	split := sess.Mode == ModeSplit

	panels := make([]order.SettlePanel, len(active))
	mixedCurrency := false
	rielSum := decimal.Zero
	for i, p := range active {
		panels[i] = order.SettlePanel{
			Currency: string(p.Currency),
			Method:   string(p.Method),
			Amount:   p.Amount,
		}
		if p.Currency == CurrencyRiel {
			mixedCurrency = true
			rielSum = rielSum.Add(p.AmountDecimal())
		}
	}

	req := order.SettleRequest{
		Currency:      string(active[0].Currency),
		SplitBill:     split,
		MixedPayments: !split && len(active) > 1,
		MixedCurrency: mixedCurrency,
	}
	if mixedCurrency {
		riel := rielSum.String()
		req.RielAmount = &riel
	}
	if split {
		req.SplitAmounts = panels
	} else {
		req.PaymentMethods = panels
	}
	return req
}

func recordFromPanels(panels []Panel) []order.SplitPayment {
	splits := make([]order.SplitPayment, len(panels))
	for i, p := range panels {
		splits[i] = order.SplitPayment{
			Currency: string(p.Currency),
			Method:   string(p.Method),
			Amount:   p.AmountDecimal(),
		}
	}
	return splits
}
