// Package memstore keeps the whole storefront in process memory. It
// implements the catalog, cart and order repositories plus db.TxRunner, and
// backs the development server and the service tests.
//
// Transactions are serialized: RunInTx holds an exclusive lock for the whole
// callback, which subsumes every row lock the Postgres repositories take. A
// failing callback restores the state captured when it started.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

type lineRow struct {
	line cart.Line
	seq  int64
}

type state struct {
	products map[uuid.UUID]catalog.Product
	carts    map[uuid.UUID]cart.Cart
	owners   map[uuid.UUID]uuid.UUID
	lines    map[uuid.UUID]lineRow
	orders   map[uuid.UUID]order.Order
	items    map[uuid.UUID][]order.OrderItem
	intents  map[string]order.PaymentIntent
	seq      int64
}

func newState() state {
	return state{
		products: map[uuid.UUID]catalog.Product{},
		carts:    map[uuid.UUID]cart.Cart{},
		owners:   map[uuid.UUID]uuid.UUID{},
		lines:    map[uuid.UUID]lineRow{},
		orders:   map[uuid.UUID]order.Order{},
		items:    map[uuid.UUID][]order.OrderItem{},
		intents:  map[string]order.PaymentIntent{},
	}
}

// clone copies every table. Row values hold no shared mutable state except
// the item slices, which are copied explicitly.
func (st state) clone() state {
	c := state{
		products: maps.Clone(st.products),
		carts:    maps.Clone(st.carts),
		owners:   maps.Clone(st.owners),
		lines:    maps.Clone(st.lines),
		orders:   maps.Clone(st.orders),
		items:    make(map[uuid.UUID][]order.OrderItem, len(st.items)),
		intents:  maps.Clone(st.intents),
		seq:      st.seq,
	}
	for id, items := range st.items {
		c.items[id] = append([]order.OrderItem(nil), items...)
	}
	return c
}

type Store struct {
	txMu   sync.Mutex
	dataMu sync.RWMutex
	st     state

	faultMu sync.Mutex
	faults  map[string]error
}

func New() *Store {
	return &Store{
		st:     newState(),
		faults: map[string]error{},
	}
}

// RunInTx implements db.TxRunner. The callback receives a nil db.DB; the
// repository factories below ignore it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, q db.DB) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.dataMu.RLock()
	snapshot := s.st.clone()
	s.dataMu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			s.restore(snapshot)
			log.Error().Interface("panic_value", r).Msg("memstore: panic inside transaction, state restored")
			panic(r)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(ctx, nil)
}

func (s *Store) restore(snapshot state) {
	s.dataMu.Lock()
	s.st = snapshot
	s.dataMu.Unlock()
}

// FailOn makes the next call of op return err. op names a repository method
// as "<table>.<Method>", e.g. "order.InsertItems" or "cart.Delete".
func (s *Store) FailOn(op string, err error) {
	s.faultMu.Lock()
	s.faults[op] = err
	s.faultMu.Unlock()
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

func (s *Store) read(fn func(st *state)) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	fn(&s.st)
}

func (s *Store) write(fn func(st *state)) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	fn(&s.st)
}

// Catalog, Carts and Orders are repository factories.
func (s *Store) Catalog(db.DB) catalog.Repository { return &catalogRepo{s: s} }

func (s *Store) Carts(db.DB) cart.Repository { return &cartRepo{s: s} }

func (s *Store) Orders(db.DB) order.Repository { return &orderRepo{s: s} }

// Prices adapts Catalog to cart.PriceReaderFactory.
func (s *Store) Prices(q db.DB) cart.PriceReader { return s.Catalog(q) }

// Counts reports table sizes.
type Counts struct {
	Products   int
	Carts      int
	Lines      int
	Orders     int
	Intents    int
	OrderItems int
}

func (s *Store) Counts() Counts {
	var c Counts
	s.read(func(st *state) {
		c = Counts{
			Products: len(st.products),
			Carts:    len(st.carts),
			Lines:    len(st.lines),
			Orders:   len(st.orders),
			Intents:  len(st.intents),
		}
		for _, items := range st.items {
			c.OrderItems += len(items)
		}
	})
	return c
}

func now() time.Time {
	return time.Now().UTC()
}

func newID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}
