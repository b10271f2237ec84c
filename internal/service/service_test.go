package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"escrow-service/config"
	"escrow-service/internal/apperr"
	"escrow-service/internal/models"
	"escrow-service/internal/store/memstore"
	"escrow-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	util.SetLogger(zap.NewNop())
}

const (
	buyerID     int64 = 1
	sellerID    int64 = 2
	inspectorID int64 = 3
)

// memGuard is an in-process IdempotencyGuard
type memGuard struct {
	mu    sync.Mutex
	locks map[string]string
	keys  map[string]string
	down  bool
}

func newMemGuard() *memGuard {
	return &memGuard{locks: map[string]string{}, keys: map[string]string{}}
}

func (g *memGuard) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return "", false, errors.New("redis down")
	}
	if _, held := g.locks[key]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	g.locks[key] = token
	return token, true, nil
}

func (g *memGuard) ReleaseLock(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks[key] == token {
		delete(g.locks, key)
	}
	return nil
}

func (g *memGuard) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errors.New("redis down")
	}
	switch v := value.(type) {
	case int64:
		g.keys[key] = strconv.FormatInt(v, 10)
	case string:
		g.keys[key] = v
	}
	return nil
}

func (g *memGuard) GetIdempotencyKey(_ context.Context, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return "", errors.New("redis down")
	}
	return g.keys[key], nil
}

// recorder captures published event types
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(t string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
	return nil
}

func (r *recorder) PublishOrderEvent(_ context.Context, e *models.OrderEvent) error {
	return r.add(e.EventType)
}

func (r *recorder) PublishDisputeEvent(_ context.Context, e *models.DisputeEvent) error {
	return r.add(e.EventType)
}

func (r *recorder) PublishInspectionEvent(_ context.Context, e *models.InspectionEvent) error {
	return r.add(e.EventType)
}

func (r *recorder) PublishWalletEvent(_ context.Context, e *models.WalletEvent) error {
	return r.add(e.EventType)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testBusiness() config.BusinessConfig {
	return config.BusinessConfig{
		CommissionRate:     decimal.RequireFromString("0.05"),
		InspectorShare:     decimal.RequireFromString("0.8"),
		InspectionFee:      100,
		PointsPerCurrency:  1000,
		IdempotencyLockTTL: 30 * time.Second,
	}
}

type fixture struct {
	db          *memstore.Store
	guard       *memGuard
	pub         *recorder
	orders      *OrderService
	disputes    *DisputeService
	inspections *InspectionService
	withdrawals *WithdrawalService
	wallets     *WalletService
	history     *HistoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	guard := newMemGuard()
	pub := &recorder{}
	business := testBusiness()
	f := &fixture{
		db:          db,
		guard:       guard,
		pub:         pub,
		orders:      NewOrderService(db, guard, pub, business),
		disputes:    NewDisputeService(db, pub, business),
		inspections: NewInspectionService(db, pub, business),
		withdrawals: NewWithdrawalService(db, pub),
		wallets:     NewWalletService(db, pub, business),
		history:     NewHistoryService(db),
	}
	for _, id := range []int64{buyerID, sellerID, inspectorID} {
		_, err := f.wallets.OpenWallet(context.Background(), id)
		require.NoError(t, err)
	}
	return f
}

// fund deposits points through the ledger so conservation can be checked
func (f *fixture) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := f.wallets.Deposit(context.Background(), userID, amount, "seed-"+uuid.NewString())
	require.NoError(t, err)
}

func (f *fixture) item(price int64) models.Item {
	return f.db.PutItem(models.Item{OwnerID: sellerID, PricePoints: price, Status: models.ItemStatusActive})
}

// actions lists the recorded audit actions of an entity in order
func (f *fixture) actions(t *testing.T, entityType string, entityID int64) []string {
	t.Helper()
	history, err := f.history.List(context.Background(), entityType, entityID)
	require.NoError(t, err)
	out := make([]string, 0, len(history))
	for _, h := range history {
		out = append(out, h.Action)
	}
	return out
}

func (f *fixture) wallet(t *testing.T, userID int64) *models.Wallet {
	t.Helper()
	w, err := f.wallets.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (f *fixture) itemStatus(t *testing.T, itemID int64) models.Item {
	t.Helper()
	for _, it := range f.db.Items() {
		if it.ID == itemID {
			return it
		}
	}
	t.Fatalf("item %d not found", itemID)
	return models.Item{}
}

// assertConserved checks that every point in wallets is accounted for by the ledger
func (f *fixture) assertConserved(t *testing.T) {
	t.Helper()
	var held, deposited, withdrawn, commission, spent, earned int64
	for _, w := range f.db.Wallets() {
		assert.GreaterOrEqual(t, w.AvailablePoints, int64(0))
		assert.GreaterOrEqual(t, w.FrozenPoints, int64(0))
		held += w.AvailablePoints + w.FrozenPoints
	}
	for _, tx := range f.db.Transactions() {
		if tx.Status != models.TxStatusSuccess {
			continue
		}
		switch tx.Type {
		case models.TxTypeDeposit:
			deposited += tx.Amount
		case models.TxTypeWithdraw:
			withdrawn += tx.Amount
		case models.TxTypeCommission:
			commission += tx.Amount
		case models.TxTypeSpend:
			spent += tx.Amount
		case models.TxTypeEarn:
			earned += tx.Amount
		}
	}
	assert.Equal(t, deposited-withdrawn-commission, held, "wallet totals drifted from ledger")
	assert.Equal(t, earned+commission, spent, "spend not matched by earn plus commission")
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), err.Error())
}
