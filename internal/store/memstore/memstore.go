// Package memstore is an in-process store.Repository used by tests and the
// DATABASE_DRIVER=memory development mode. Transactions are serialized and
// run against a copy of the state that replaces the live one only on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrow-service/internal/models"
	"escrow-service/internal/store"
)

type state struct {
	wallets     map[int64]models.Wallet
	txs         map[int64]models.PointTransaction
	items       map[int64]models.Item
	orders      map[int64]models.Order
	orderKeys   map[string]int64
	history     []models.OrderStatusHistory
	inspections map[int64]models.InspectionRequest
	reports     map[int64]models.InspectionReport
	disputes    map[int64]models.Dispute
	audit       []models.EntityHistory
	seq         map[string]int64
}

func newState() *state {
	return &state{
		wallets:     make(map[int64]models.Wallet),
		txs:         make(map[int64]models.PointTransaction),
		items:       make(map[int64]models.Item),
		orders:      make(map[int64]models.Order),
		orderKeys:   make(map[string]int64),
		inspections: make(map[int64]models.InspectionRequest),
		reports:     make(map[int64]models.InspectionReport),
		disputes:    make(map[int64]models.Dispute),
		seq:         make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderKeys {
		c.orderKeys[k] = v
	}
	c.history = append(c.history, s.history...)
	for k, v := range s.inspections {
		c.inspections[k] = v
	}
	for k, v := range s.reports {
		v.Medias = append([]models.ReportMedia(nil), v.Medias...)
		c.reports[k] = v
	}
	for k, v := range s.disputes {
		c.disputes[k] = v
	}
	c.audit = append(c.audit, s.audit...)
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store implements store.TxRunner in memory
type Store struct {
	mu    sync.Mutex
	state *state
}

// New creates an empty store
func New() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn exclusively. The state is replaced only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&repo{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View runs fn against a throwaway copy
func (s *Store) View(ctx context.Context, fn func(repo store.Repository) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&repo{st: snapshot})
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// PutWallet seeds or overwrites a wallet
func (s *Store) PutWallet(w models.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = now()
	}
	s.state.wallets[w.UserID] = w
}

// PutItem seeds an item, assigning an ID when zero
func (s *Store) PutItem(item models.Item) models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.state.next("items")
	} else if item.ID > s.state.seq["items"] {
		s.state.seq["items"] = item.ID
	}
	if item.InspectionStatus == "" {
		item.InspectionStatus = models.ItemInspectionNone
	}
	item.UpdatedAt = now()
	s.state.items[item.ID] = item
	return item
}

// Transactions returns every ledger row in insertion order
func (s *Store) Transactions() []models.PointTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PointTransaction, 0, len(s.state.txs))
	for _, tx := range s.state.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Items returns every item ordered by ID
func (s *Store) Items() []models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Item, 0, len(s.state.items))
	for _, it := range s.state.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wallets returns every wallet ordered by user
func (s *Store) Wallets() []models.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Wallet, 0, len(s.state.wallets))
	for _, w := range s.state.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func now() time.Time {
	return time.Now().UTC()
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), store.ErrNotFound)
}

func duplicate(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", store.ErrDuplicate, fmt.Sprintf(format, args...))
}
