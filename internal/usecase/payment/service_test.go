package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout-service/config"
	"checkout-service/internal/domain"
	"checkout-service/internal/events"
	"checkout-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is a single in-memory world shared by the fake repositories
// so settlement can touch orders and wallets under one lock, the way
// the real repositories share one storage transaction.
type memStore struct {
	mu      sync.Mutex
	seq     int
	orders  map[string]*domain.Order
	wallets map[string]*domain.Wallet
	entries []*domain.WalletTransaction
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[string]*domain.Order),
		wallets: make(map[string]*domain.Wallet),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addOrder(userID string, amount int64) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &domain.Order{
		ID:            s.nextID("order"),
		UserID:        userID,
		OrderNumber:   s.nextID("ORD"),
		TotalAmount:   amount,
		Currency:      "VND",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     time.Now(),
	}
	s.orders[o.ID] = o
	return copyOrder(o)
}

func (s *memStore) addWallet(userID string, balance int64) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &domain.Wallet{
		ID:       s.nextID("wallet"),
		UserID:   userID,
		Balance:  balance,
		Currency: "VND",
		IsActive: true,
	}
	s.wallets[w.ID] = w
	return copyWallet(w)
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	return &c
}

func copyWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func copyEntry(e *domain.WalletTransaction) *domain.WalletTransaction {
	c := *e
	return &c
}

// appendEntry writes a completed ledger entry and moves the balance.
// Caller holds s.mu.
func (s *memStore) appendEntry(w *domain.Wallet, orderID *string, txType domain.TransactionType, amount int64, externalRef *string) *domain.WalletTransaction {
	e := &domain.WalletTransaction{
		ID:            s.nextID("tx"),
		WalletID:      w.ID,
		OrderID:       orderID,
		TxType:        txType,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance + amount,
		Status:        domain.TxStatusCompleted,
		ExternalRef:   externalRef,
		CreatedAt:     time.Now(),
	}
	w.Balance += amount
	s.entries = append(s.entries, e)
	return copyEntry(e)
}

func (s *memStore) entryByRef(ref string) *domain.WalletTransaction {
	for _, e := range s.entries {
		if e.ExternalRef != nil && *e.ExternalRef == ref {
			return e
		}
	}
	return nil
}

// --- fake OrderRepository ---

type fakeOrderRepo struct{ s *memStore }

func (r *fakeOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order.ID = r.s.nextID("order")
	r.s.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r *fakeOrderRepo) GetByExternalCode(ctx context.Context, code string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.ExternalOrderCode != nil && *o.ExternalOrderCode == code {
			return copyOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r *fakeOrderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) List(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) SetExternalCode(ctx context.Context, orderID, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentStatus != domain.PaymentStatusPending || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.ExternalOrderCode = &code
	o.PaymentMethod = domain.PaymentMethodGateway
	return true, nil
}

func (r *fakeOrderRepo) MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentStatus != domain.PaymentStatusPending || o.Status != domain.OrderStatusPending {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentStatusPaid
	o.Status = domain.OrderStatusConfirmed
	o.PaymentMethod = method
	return true, nil
}

func (r *fakeOrderRepo) MarkPaymentFailed(ctx context.Context, orderID, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentStatusFailed
	o.FailureReason = &reason
	return true, nil
}

func (r *fakeOrderRepo) MarkRefunded(ctx context.Context, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentStatus != domain.PaymentStatusPaid {
		return false, nil
	}
	if o.Status != domain.OrderStatusPending && o.Status != domain.OrderStatusConfirmed {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentStatusRefunded
	o.Status = domain.OrderStatusCancelled
	return true, nil
}

func (r *fakeOrderRepo) CancelUnpaid(ctx context.Context, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return false, nil
	}
	if o.PaymentStatus != domain.PaymentStatusPending && o.PaymentStatus != domain.PaymentStatusFailed {
		return false, nil
	}
	if o.Status != domain.OrderStatusPending && o.Status != domain.OrderStatusConfirmed {
		return false, nil
	}
	o.Status = domain.OrderStatusCancelled
	return true, nil
}

func (r *fakeOrderRepo) AdvanceFulfilment(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Status != from || o.PaymentStatus != domain.PaymentStatusPaid {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// --- fake WalletRepository ---

type fakeWalletRepo struct{ s *memStore }

func (r *fakeWalletRepo) Create(ctx context.Context, userID, currency string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w := &domain.Wallet{
		ID:       r.s.nextID("wallet"),
		UserID:   userID,
		Currency: currency,
		IsActive: true,
	}
	r.s.wallets[w.ID] = w
	return copyWallet(w), nil
}

func (r *fakeWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			return copyWallet(w), nil
		}
	}
	return nil, domain.ErrWalletNotFound
}

func (r *fakeWalletRepo) GetByID(ctx context.Context, walletID string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (r *fakeWalletRepo) Debit(ctx context.Context, walletID string, orderID *string, amount int64, description string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w := r.s.wallets[walletID]
	if w.Balance < amount {
		return nil, domain.ErrInsufficientBalance
	}
	return r.s.appendEntry(w, orderID, domain.TxTypePayment, -amount, nil), nil
}

func (r *fakeWalletRepo) Credit(ctx context.Context, walletID string, orderID *string, txType domain.TransactionType, amount int64, description string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.appendEntry(r.s.wallets[walletID], orderID, txType, amount, nil), nil
}

func (r *fakeWalletRepo) CreatePendingTopup(ctx context.Context, walletID string, amount int64, externalRef, description string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := &domain.WalletTransaction{
		ID:          r.s.nextID("tx"),
		WalletID:    walletID,
		TxType:      domain.TxTypeTopup,
		Amount:      amount,
		Status:      domain.TxStatusPending,
		ExternalRef: &externalRef,
		CreatedAt:   time.Now(),
	}
	r.s.entries = append(r.s.entries, e)
	return copyEntry(e), nil
}

func (r *fakeWalletRepo) CompleteTopup(ctx context.Context, externalRef string) (*domain.WalletTransaction, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := r.s.entryByRef(externalRef)
	if e == nil {
		return nil, false, domain.ErrTransactionNotFound
	}
	switch e.Status {
	case domain.TxStatusCompleted:
		return copyEntry(e), false, nil
	case domain.TxStatusPending:
		w := r.s.wallets[e.WalletID]
		e.BalanceBefore = w.Balance
		e.BalanceAfter = w.Balance + e.Amount
		e.Status = domain.TxStatusCompleted
		w.Balance += e.Amount
		return copyEntry(e), true, nil
	default:
		return nil, false, domain.ErrInvalidStateTransition
	}
}

func (r *fakeWalletRepo) FailTopup(ctx context.Context, externalRef, reason string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := r.s.entryByRef(externalRef)
	if e == nil || e.Status != domain.TxStatusPending {
		return nil, domain.ErrInvalidStateTransition
	}
	e.Status = domain.TxStatusFailed
	e.FailureReason = &reason
	return copyEntry(e), nil
}

func (r *fakeWalletRepo) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := r.s.entryByRef(externalRef)
	if e == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return copyEntry(e), nil
}

func (r *fakeWalletRepo) ListTransactions(ctx context.Context, walletID string, limit int) ([]*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.WalletTransaction
	for _, e := range r.s.entries {
		if e.WalletID == walletID {
			out = append(out, copyEntry(e))
		}
	}
	return out, nil
}

// --- fake SettlementRepository ---

type fakeSettlementRepo struct{ s *memStore }

func (r *fakeSettlementRepo) SettleWalletPayment(ctx context.Context, orderID, walletID string, amount int64, description string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if o.PaymentStatus != domain.PaymentStatusPending || o.Status != domain.OrderStatusPending {
		return nil, domain.ErrInvalidStateTransition
	}
	w := r.s.wallets[walletID]
	if !w.IsActive {
		return nil, domain.ErrWalletInactive
	}
	if w.Balance < amount {
		return nil, domain.ErrInsufficientBalance
	}
	o.PaymentStatus = domain.PaymentStatusPaid
	o.Status = domain.OrderStatusConfirmed
	o.PaymentMethod = domain.PaymentMethodWallet
	return r.s.appendEntry(w, &o.ID, domain.TxTypePayment, -amount, nil), nil
}

func (r *fakeSettlementRepo) RefundWalletPayment(ctx context.Context, orderID, walletID string, amount int64, description string) (*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if o.PaymentStatus != domain.PaymentStatusPaid {
		return nil, domain.ErrInvalidStateTransition
	}
	if o.Status != domain.OrderStatusPending && o.Status != domain.OrderStatusConfirmed {
		return nil, domain.ErrInvalidStateTransition
	}
	o.PaymentStatus = domain.PaymentStatusRefunded
	o.Status = domain.OrderStatusCancelled
	return r.s.appendEntry(r.s.wallets[walletID], &o.ID, domain.TxTypeRefund, amount, nil), nil
}

// --- fake WalletAccounts ---

type fakeAccounts struct {
	repo   *fakeWalletRepo
	mu     sync.Mutex
	synced []int64
}

func (a *fakeAccounts) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := a.repo.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	return a.repo.Create(ctx, userID, "VND")
}

func (a *fakeAccounts) SyncBalance(ctx context.Context, userID, walletID string, balance int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.synced = append(a.synced, balance)
}

// --- fake Gateway ---

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req *provider.CreateLinkRequest) (*provider.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &provider.PaymentLink{
		CheckoutURL: "https://pay.example.com/" + req.Reference,
		LinkID:      "link-" + req.Reference,
	}, nil
}

func (g *fakeGateway) VerifyWebhook(payload []byte) (*provider.WebhookResult, error) {
	return nil, nil
}

type fixture struct {
	store    *memStore
	orders   *fakeOrderRepo
	wallets  *fakeWalletRepo
	accounts *fakeAccounts
	gateway  *fakeGateway
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	orders := &fakeOrderRepo{s: store}
	wallets := &fakeWalletRepo{s: store}
	accounts := &fakeAccounts{repo: wallets}
	gateway := &fakeGateway{}
	cfg := &config.Config{
		Currency:  "VND",
		ReturnURL: "https://shop.example.com/checkout/result",
		CancelURL: "https://shop.example.com/checkout/cancelled",
	}
	svc := New(
		orders,
		wallets,
		&fakeSettlementRepo{s: store},
		gateway,
		accounts,
		events.NewPublisher(config.KafkaConfig{}, zap.NewNop()),
		cfg,
		zap.NewNop(),
	)
	return &fixture{store: store, orders: orders, wallets: wallets, accounts: accounts, gateway: gateway, svc: svc}
}

func TestPayWithWallet_DebitsAndMarksPaid(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 100_000)
	order := f.store.addOrder("user-1", 60_000)

	paid, err := f.svc.PayWithWallet(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
	assert.Equal(t, domain.PaymentMethodWallet, paid.PaymentMethod)

	require.Len(t, f.store.entries, 1)
	entry := f.store.entries[0]
	assert.Equal(t, int64(-60_000), entry.Amount)
	assert.Equal(t, int64(100_000), entry.BalanceBefore)
	assert.Equal(t, int64(40_000), entry.BalanceAfter)
	assert.Equal(t, domain.TxStatusCompleted, entry.Status)
	require.NotNil(t, entry.OrderID)
	assert.Equal(t, order.ID, *entry.OrderID)

	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), wallet.Balance)

	require.Len(t, f.accounts.synced, 1)
	assert.Equal(t, int64(40_000), f.accounts.synced[0])
}

func TestPayWithWallet_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 10_000)
	order := f.store.addOrder("user-1", 60_000)

	_, err := f.svc.PayWithWallet(context.Background(), "user-1", order.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	current, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, current.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, current.Status)

	assert.Empty(t, f.store.entries)

	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), wallet.Balance)
}

func TestPayWithWallet_ConcurrentAttemptsDebitOnce(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 500_000)
	order := f.store.addOrder("user-1", 60_000)

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PayWithWallet(context.Background(), "user-1", order.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, rejected)

	require.Len(t, f.store.entries, 1)
	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(440_000), wallet.Balance)
}

func TestPayWithWallet_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-2", 100_000)
	order := f.store.addOrder("user-1", 60_000)

	_, err := f.svc.PayWithWallet(context.Background(), "user-2", order.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCancelOrder_RefundRestoresBalance(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 100_000)
	order := f.store.addOrder("user-1", 60_000)

	_, err := f.svc.PayWithWallet(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(context.Background(), "user-1", order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, cancelled.PaymentStatus)

	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), wallet.Balance)

	// The refund chains onto the debit: its BalanceBefore equals the
	// debit's BalanceAfter and the amounts are mirrored.
	require.Len(t, f.store.entries, 2)
	debit, refund := f.store.entries[0], f.store.entries[1]
	assert.Equal(t, domain.TxTypeRefund, refund.TxType)
	assert.Equal(t, debit.BalanceAfter, refund.BalanceBefore)
	assert.Equal(t, -debit.Amount, refund.Amount)
	assert.Equal(t, int64(100_000), refund.BalanceAfter)
}

func TestCancelOrder_UnpaidNoRefundEntry(t *testing.T) {
	f := newFixture(t)
	order := f.store.addOrder("user-1", 60_000)

	cancelled, err := f.svc.CancelOrder(context.Background(), "user-1", order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentStatusPending, cancelled.PaymentStatus)
	assert.Empty(t, f.store.entries)
}

func TestCancelOrder_RejectedOncePrinting(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 100_000)
	order := f.store.addOrder("user-1", 60_000)

	_, err := f.svc.PayWithWallet(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	ok, err := f.orders.AdvanceFulfilment(context.Background(), order.ID, domain.OrderStatusConfirmed, domain.OrderStatusPrinting)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.CancelOrder(context.Background(), "user-1", order.ID, false)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestInitiateGatewayPayment_CreatesSession(t *testing.T) {
	f := newFixture(t)
	order := f.store.addOrder("user-1", 60_000)

	link, err := f.svc.InitiateGatewayPayment(context.Background(), "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, link.OrderID)
	assert.NotEmpty(t, link.ExternalRef)
	assert.Contains(t, link.CheckoutURL, link.ExternalRef)

	current, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, current.ExternalOrderCode)
	assert.Equal(t, link.ExternalRef, *current.ExternalOrderCode)
	assert.Equal(t, domain.PaymentStatusPending, current.PaymentStatus)
}

func TestInitiateGatewayPayment_GatewayDownLeavesOrderRetryable(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = domain.ErrGatewayUnavailable
	order := f.store.addOrder("user-1", 60_000)

	_, err := f.svc.InitiateGatewayPayment(context.Background(), "user-1", order.ID)
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	// Order is still payable; a retry issues a fresh reference.
	f.gateway.err = nil
	link, err := f.svc.InitiateGatewayPayment(context.Background(), "user-1", order.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, link.CheckoutURL)
}

func TestConfirmGatewayPayment_IdempotentOnReplay(t *testing.T) {
	f := newFixture(t)
	order := f.store.addOrder("user-1", 60_000)

	link, err := f.svc.InitiateGatewayPayment(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	result := &provider.WebhookResult{
		Reference: link.ExternalRef,
		Success:   true,
		Amount:    60_000,
	}
	require.NoError(t, f.svc.ConfirmGatewayPayment(context.Background(), result))
	require.NoError(t, f.svc.ConfirmGatewayPayment(context.Background(), result))

	current, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, current.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, current.Status)
	assert.Equal(t, domain.PaymentMethodGateway, current.PaymentMethod)

	// Gateway settlements never touch the wallet ledger.
	assert.Empty(t, f.store.entries)
}

func TestConfirmGatewayPayment_FailureOutcome(t *testing.T) {
	f := newFixture(t)
	order := f.store.addOrder("user-1", 60_000)

	link, err := f.svc.InitiateGatewayPayment(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	result := &provider.WebhookResult{
		Reference: link.ExternalRef,
		Success:   false,
		Code:      "07",
		Desc:      "card declined",
	}
	require.NoError(t, f.svc.ConfirmGatewayPayment(context.Background(), result))
	// Replayed failure is a no-op.
	require.NoError(t, f.svc.ConfirmGatewayPayment(context.Background(), result))

	current, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, current.PaymentStatus)
	require.NotNil(t, current.FailureReason)
	assert.Equal(t, "card declined", *current.FailureReason)
}

func TestConfirmGatewayPayment_AmountMismatchRejected(t *testing.T) {
	f := newFixture(t)
	order := f.store.addOrder("user-1", 60_000)

	link, err := f.svc.InitiateGatewayPayment(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	err = f.svc.ConfirmGatewayPayment(context.Background(), &provider.WebhookResult{
		Reference: link.ExternalRef,
		Success:   true,
		Amount:    1_000,
	})
	require.ErrorIs(t, err, domain.ErrAmountMismatch)

	current, err := f.orders.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, current.PaymentStatus)
}

func TestTopup_ConfirmCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 40_000)

	link, err := f.svc.InitiateTopup(context.Background(), "user-1", &domain.TopupRequest{Amount: 50_000})
	require.NoError(t, err)
	require.NotEmpty(t, link.ExternalRef)

	// Pending entry exists but the balance has not moved.
	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), wallet.Balance)

	result := &provider.WebhookResult{Reference: link.ExternalRef, Success: true}
	require.NoError(t, f.svc.ConfirmTopup(context.Background(), result))
	require.NoError(t, f.svc.ConfirmTopup(context.Background(), result))

	wallet, err = f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), wallet.Balance)

	entry, err := f.wallets.GetTransactionByExternalRef(context.Background(), link.ExternalRef)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, entry.Status)
	assert.Equal(t, int64(40_000), entry.BalanceBefore)
	assert.Equal(t, int64(90_000), entry.BalanceAfter)
}

func TestTopup_ReplayAfterLaterDebitDoesNotResyncStaleBalance(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 50_000)

	link, err := f.svc.InitiateTopup(context.Background(), "user-1", &domain.TopupRequest{Amount: 50_000})
	require.NoError(t, err)

	result := &provider.WebhookResult{Reference: link.ExternalRef, Success: true}
	require.NoError(t, f.svc.ConfirmTopup(context.Background(), result))

	order := f.store.addOrder("user-1", 60_000)
	_, err = f.svc.PayWithWallet(context.Background(), "user-1", order.ID)
	require.NoError(t, err)

	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(40_000), wallet.Balance)

	// The gateway redelivers the original top-up confirmation. The
	// entry's historical balance_after (100k) must not overwrite the
	// current 40k in the cache or reach websocket subscribers.
	require.NoError(t, f.svc.ConfirmTopup(context.Background(), result))

	require.Equal(t, []int64{100_000, 40_000}, f.accounts.synced)
	wallet, err = f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), wallet.Balance)
}

func TestTopup_FailureLeavesBalanceUntouched(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("user-1", 40_000)

	link, err := f.svc.InitiateTopup(context.Background(), "user-1", &domain.TopupRequest{Amount: 50_000})
	require.NoError(t, err)

	result := &provider.WebhookResult{Reference: link.ExternalRef, Success: false, Desc: "expired"}
	require.NoError(t, f.svc.ConfirmTopup(context.Background(), result))
	require.NoError(t, f.svc.ConfirmTopup(context.Background(), result))

	wallet, err := f.wallets.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40_000), wallet.Balance)

	entry, err := f.wallets.GetTransactionByExternalRef(context.Background(), link.ExternalRef)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, entry.Status)
}

func TestTopup_InvalidAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.InitiateTopup(context.Background(), "user-1", &domain.TopupRequest{Amount: 0})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, 0, f.gateway.calls)
}

// Walks a full shopper lifecycle: pay 60k from a 100k wallet, bounce a
// 50k order off the remaining 40k, then cancel the paid order and see
// the original 100k restored.
func TestWalletLifecycleWalkthrough(t *testing.T) {
	f := newFixture(t)
	f.store.addWallet("shopper", 100_000)

	order1 := f.store.addOrder("shopper", 60_000)
	paid, err := f.svc.PayWithWallet(context.Background(), "shopper", order1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)

	wallet, _ := f.wallets.GetByUserID(context.Background(), "shopper")
	require.Equal(t, int64(40_000), wallet.Balance)

	order2 := f.store.addOrder("shopper", 50_000)
	_, err = f.svc.PayWithWallet(context.Background(), "shopper", order2.ID)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	wallet, _ = f.wallets.GetByUserID(context.Background(), "shopper")
	require.Equal(t, int64(40_000), wallet.Balance)

	_, err = f.svc.CancelOrder(context.Background(), "shopper", order1.ID, false)
	require.NoError(t, err)

	wallet, _ = f.wallets.GetByUserID(context.Background(), "shopper")
	require.Equal(t, int64(100_000), wallet.Balance)

	// Every completed entry chains onto the previous one.
	var prev *domain.WalletTransaction
	for _, e := range f.store.entries {
		if e.Status != domain.TxStatusCompleted {
			continue
		}
		assert.Equal(t, e.BalanceBefore+e.Amount, e.BalanceAfter)
		if prev != nil {
			assert.Equal(t, prev.BalanceAfter, e.BalanceBefore)
		}
		prev = e
	}
}
