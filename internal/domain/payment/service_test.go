package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokrith/pos-settlement/internal/domain/order"
)

// --- Mock implementations ---

type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	loadErr  error
	saveErr  error
	saves    int
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*Session)}
}

func (m *mockStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *s
	m.sessions[s.OrderID] = &cp
	return nil
}

func (m *mockStore) Load(_ context.Context, orderID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	s, ok := m.sessions[orderID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) Clear(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, orderID)
	return nil
}

type mockGateway struct {
	mu          sync.Mutex
	settleCalls int
	lastReq     order.SettleRequest
	result      *order.SettleResult
	err         error
	settleDelay time.Duration
}

func (m *mockGateway) Fetch(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockGateway) Settle(_ context.Context, _ string, req order.SettleRequest) (*order.SettleResult, error) {
	if m.settleDelay > 0 {
		time.Sleep(m.settleDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleCalls++
	m.lastReq = req
	return m.result, m.err
}

// --- Helpers ---

func testOrder() *order.Order {
	return &order.Order{
		ID:       "o1",
		Subtotal: dec("29.00"),
		Tax:      dec("2.90"),
		Discount: decimal.Zero,
		Total:    dec("31.90"),
		Currency: "USD",
	}
}

func newTestService(store *mockStore, gw *mockGateway) *Service {
	return NewService(store, gw, decimal.NewFromInt(4100))
}

// --- Tests ---

func TestSession_SeedsAndPersists(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockGateway{})

	sess, err := svc.Session(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, ModeFull, sess.Mode)
	assert.Equal(t, "31.90", sess.FullPanels[0].Amount)
	assert.NotNil(t, store.sessions["o1"])
}

func TestSession_RestoresPersisted(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockGateway{})
	o := testOrder()

	_, _, err := svc.UpdatePanel(context.Background(), o, 1, PanelUpdate{Amount: strPtr("20")})
	require.NoError(t, err)

	sess, err := svc.Session(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "20", sess.FullPanels[0].Amount)
}

func TestSession_AutoFillSkipsTypedAmount(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockGateway{})
	o := testOrder()

	// Cashier cleared the amount, then typed a value: restore must not
	// overwrite it with the order total.
	_, _, err := svc.UpdatePanel(context.Background(), o, 1, PanelUpdate{Amount: strPtr("5")})
	require.NoError(t, err)

	sess, err := svc.Session(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "5", sess.FullPanels[0].Amount)
}

func TestSession_AutoFillOnEmptyPanel(t *testing.T) {
	store := newMockStore()
	store.sessions["o1"] = &Session{
		OrderID:    "o1",
		Mode:       ModeFull,
		FullPanels: []Panel{{ID: 1, Currency: CurrencyUSD, Method: MethodCash}},
	}
	svc := newTestService(store, &mockGateway{})

	sess, err := svc.Session(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "31.90", sess.FullPanels[0].Amount)
}

func TestSession_LoadFailureReseeds(t *testing.T) {
	store := newMockStore()
	store.loadErr = errors.New("db down")
	svc := newTestService(store, &mockGateway{})

	sess, err := svc.Session(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "31.90", sess.FullPanels[0].Amount)
}

func TestSession_IncompleteOrder(t *testing.T) {
	svc := newTestService(newMockStore(), &mockGateway{})

	_, err := svc.Session(context.Background(), &order.Order{ID: "o1"})
	require.ErrorIs(t, err, order.ErrIncomplete)
}

func TestMutations_AutoSaveSynchronously(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockGateway{})
	o := testOrder()

	before := store.saves
	_, _, err := svc.AddPanel(context.Background(), o)
	require.NoError(t, err)
	assert.Greater(t, store.saves, before)
}

func TestMutations_SaveFailureIsBestEffort(t *testing.T) {
	store := newMockStore()
	store.saveErr = errors.New("disk full")
	svc := newTestService(store, &mockGateway{})

	sess, _, err := svc.AddPanel(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Len(t, sess.FullPanels, 2)
}

func TestCommit_Success(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{result: &order.SettleResult{ReceiptID: "r1"}}
	svc := newTestService(store, gw)
	o := testOrder()

	res, err := svc.Commit(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, "r1", res.ReceiptID)
	assert.Equal(t, 1, gw.settleCalls)
	assert.Empty(t, store.sessions, "session cleared after commit")

	require.NotNil(t, res.Receipt)
	assert.False(t, res.Receipt.Draft)
	assert.True(t, dec("31.90").Equal(res.Receipt.Total))
}

func TestCommit_ConcurrentCallsShareOneSettle(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{
		result:      &order.SettleResult{ReceiptID: "r1"},
		settleDelay: 200 * time.Millisecond,
	}
	svc := newTestService(store, gw)
	o := testOrder()

	// Seed the committable session before racing.
	_, rec, err := svc.Reconcile(context.Background(), o)
	require.NoError(t, err)
	require.True(t, rec.CanCommit())

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts []string
		errs     []error
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Commit(context.Background(), o)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			receipts = append(receipts, res.ReceiptID)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)

	assert.Equal(t, 1, gw.settleCalls, "concurrent commits must collapse into one settle call")
	require.Len(t, receipts, callers)
	for _, id := range receipts {
		assert.Equal(t, "r1", id, "late callers share the in-flight result")
	}
}

func TestCommit_RejectedLocallyWithoutNetworkCall(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{result: &order.SettleResult{ReceiptID: "r1"}}
	svc := newTestService(store, gw)
	o := testOrder()

	_, _, err := svc.UpdatePanel(context.Background(), o, 1, PanelUpdate{Amount: strPtr("10")})
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), o)

	var precond *PreconditionError
	require.ErrorAs(t, err, &precond)
	assert.NotEmpty(t, precond.Errors)
	assert.Equal(t, 0, gw.settleCalls, "no network call on local rejection")
}

func TestCommit_ConflictClearsSession(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{err: order.ErrAlreadyPaid}
	svc := newTestService(store, gw)

	_, err := svc.Commit(context.Background(), testOrder())
	require.ErrorIs(t, err, order.ErrAlreadyPaid)
	assert.Empty(t, store.sessions, "retry cannot succeed, session dropped")
}

func TestCommit_TransientFailureKeepsSession(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{err: &order.TransientError{Err: errors.New("gateway timeout")}}
	svc := newTestService(store, gw)

	_, err := svc.Commit(context.Background(), testOrder())

	var transient *order.TransientError
	require.ErrorAs(t, err, &transient)
	assert.NotEmpty(t, store.sessions, "session preserved for retry")
}

func TestCommit_PayloadFullMode(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{result: &order.SettleResult{ReceiptID: "r1"}}
	svc := newTestService(store, gw)

	_, err := svc.Commit(context.Background(), testOrder())
	require.NoError(t, err)

	req := gw.lastReq
	assert.Equal(t, "USD", req.Currency)
	assert.False(t, req.SplitBill)
	assert.False(t, req.MixedPayments)
	assert.False(t, req.MixedCurrency)
	assert.Nil(t, req.RielAmount)
	require.Len(t, req.PaymentMethods, 1)
	assert.Equal(t, "31.90", req.PaymentMethods[0].Amount)
	assert.Empty(t, req.SplitAmounts)
}

func TestCommit_PayloadMixedCurrency(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{result: &order.SettleResult{ReceiptID: "r1"}}
	svc := newTestService(store, gw)
	o := testOrder()
	ctx := context.Background()

	_, _, err := svc.UpdatePanel(ctx, o, 1, PanelUpdate{Amount: strPtr("20.00")})
	require.NoError(t, err)
	sess, _, err := svc.AddPanel(ctx, o)
	require.NoError(t, err)
	added := sess.FullPanels[1].ID
	riel := CurrencyRiel
	_, _, err = svc.UpdatePanel(ctx, o, added, PanelUpdate{Amount: strPtr("48790"), Currency: &riel})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, o)
	require.NoError(t, err)

	req := gw.lastReq
	assert.True(t, req.MixedPayments)
	assert.True(t, req.MixedCurrency)
	require.NotNil(t, req.RielAmount)
	assert.Equal(t, "48790", *req.RielAmount)
}

func TestCommit_PayloadSplitMode(t *testing.T) {
	store := newMockStore()
	gw := &mockGateway{result: &order.SettleResult{ReceiptID: "r1"}}
	svc := newTestService(store, gw)
	o := testOrder()
	ctx := context.Background()

	_, _, err := svc.SwitchMode(ctx, o, ModeSplit)
	require.NoError(t, err)

	res, err := svc.Commit(ctx, o)
	require.NoError(t, err)

	req := gw.lastReq
	assert.True(t, req.SplitBill)
	require.Len(t, req.SplitAmounts, 2)
	assert.Empty(t, req.PaymentMethods)

	// Final receipt carries the per-part allocations.
	require.Len(t, res.Receipt.Splits, 2)
	// 15.95/29.00 = 0.55 ratio, 2.90 * 0.55 = 1.595 rounds to 1.60.
	assert.True(t, dec("1.60").Equal(res.Receipt.Splits[0].Tax), "tax %s", res.Receipt.Splits[0].Tax)
}

func TestDraft_SplitAllocations(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockGateway{})
	o := testOrder()
	ctx := context.Background()

	_, _, err := svc.SwitchMode(ctx, o, ModeSplit)
	require.NoError(t, err)

	receipt, err := svc.Draft(ctx, o)
	require.NoError(t, err)

	assert.True(t, receipt.Draft)
	require.Len(t, receipt.Splits, 2)
	assert.True(t, dec("130800").Equal(receipt.TotalRiel), "riel %s", receipt.TotalRiel)
	assert.NotEmpty(t, store.sessions, "draft must not clear the session")
}

func TestCancel_ClearsSession(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, &mockGateway{})
	o := testOrder()

	_, err := svc.Session(context.Background(), o)
	require.NoError(t, err)
	require.NotEmpty(t, store.sessions)

	require.NoError(t, svc.Cancel(context.Background(), o.ID))
	assert.Empty(t, store.sessions)
}

func strPtr(s string) *string { return &s }
