// Package records keeps the local order list in step with the service. The
// server is the only source of truth for monetary fields: every mutation
// either adopts the server's response or re-fetches the list.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tonimelisma/orderdesk/internal/api"
)

// Remote is the slice of the service client record synchronization needs.
type Remote interface {
	ListOrders(ctx context.Context) ([]api.Order, error)
	UpdateOrder(ctx context.Context, id int64, patch api.OrderPatch) (*api.Order, error)
	ToggleDiscount(ctx context.Context, id int64) error
	AddPayment(ctx context.Context, id int64, amount float64) error
	DeleteOrder(ctx context.Context, id int64) error
	FromOrder(ctx context.Context, o api.Order) ([]byte, error)
}

// Cache persists the last confirmed list. Cache failures are logged and
// never fail an operation.
type Cache interface {
	Load(ctx context.Context) ([]api.Order, error)
	Replace(ctx context.Context, orders []api.Order) error
	Upsert(ctx context.Context, o api.Order) error
	Delete(ctx context.Context, id int64) error
}

// confirmation is a mutation the server acknowledged while fetches may have
// been in flight. order is nil for a delete.
type confirmation struct {
	seq   uint64
	order *api.Order
}

// Sync holds the order list. Safe for concurrent use; no lock is held across
// a network call.
//
// Fetches are numbered when they start. A fetch is applied only if no
// later-started fetch has been applied already. Confirmed deletes and updates
// are stamped with the latest start number, and any fetch that started at or
// before that stamp has them re-applied, so a stale list never resurrects a
// deleted order or rolls back an update.
type Sync struct {
	remote Remote
	cache  Cache
	logger *slog.Logger

	mu        sync.Mutex
	orders    []api.Order
	started   uint64
	applied   uint64
	confirmed map[int64]confirmation

	// cacheMu orders cache writes the same way the in-memory changes were
	// ordered. Acquired while holding mu, released after the write.
	cacheMu sync.Mutex
}

// New creates an empty Sync. cache may be nil.
func New(remote Remote, cache Cache, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sync{
		remote:    remote,
		cache:     cache,
		logger:    logger,
		confirmed: make(map[int64]confirmation),
	}
}

// LoadCached fills the list from the cache when nothing has been fetched yet.
func (s *Sync) LoadCached(ctx context.Context) ([]api.Order, error) {
	if s.cache == nil {
		return s.List(), nil
	}

	orders, err := s.cache.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: loading cached orders: %w", err)
	}

	s.mu.Lock()
	if s.applied == 0 {
		s.orders = orders
	}
	out := slices.Clone(s.orders)
	s.mu.Unlock()

	return out, nil
}

// Fetch re-reads the list and replaces the local one wholesale. On any
// failure, including Unauthorized and cancellation, the list is unchanged.
// A fetch overtaken by a later-started one that already applied is dropped
// and the current list is returned.
func (s *Sync) Fetch(ctx context.Context) ([]api.Order, error) {
	s.mu.Lock()
	s.started++
	seq := s.started
	s.mu.Unlock()

	orders, err := s.remote.ListOrders(ctx)
	if err != nil {
		if !api.IsCanceled(err) {
			s.logger.Warn("order fetch failed",
				slog.Uint64("seq", seq),
				slog.String("kind", api.KindOf(err).String()),
			)
		}

		return nil, err
	}

	if ctx.Err() != nil {
		return nil, &api.Error{Kind: api.KindCanceled, Message: "request canceled", Err: ctx.Err()}
	}

	s.mu.Lock()
	if seq <= s.applied {
		applied := s.applied
		out := slices.Clone(s.orders)
		s.mu.Unlock()

		s.logger.Debug("discarding stale order fetch",
			slog.Uint64("seq", seq),
			slog.Uint64("applied", applied),
		)

		return out, nil
	}

	orders = s.reconcile(seq, orders)
	s.orders = orders
	s.applied = seq
	s.pruneConfirmed()
	out := slices.Clone(orders)

	s.cacheMu.Lock()
	s.mu.Unlock()
	s.cacheWrite(ctx, "replace", func(ctx context.Context) error { return s.cache.Replace(ctx, out) })
	s.cacheMu.Unlock()

	s.logger.Debug("orders fetched", slog.Uint64("seq", seq), slog.Int("count", len(out)))

	return out, nil
}

// reconcile re-applies confirmations a fetch that started at seq could not
// have seen. Caller holds mu.
func (s *Sync) reconcile(seq uint64, orders []api.Order) []api.Order {
	if len(s.confirmed) == 0 {
		return orders
	}

	out := orders[:0:0]

	for _, o := range orders {
		c, ok := s.confirmed[o.ID]
		if !ok || c.seq < seq {
			out = append(out, o)
			continue
		}

		if c.order == nil {
			s.logger.Debug("dropping deleted order from stale fetch", slog.Int64("order_id", o.ID))
			continue
		}

		out = append(out, *c.order)
	}

	return out
}

// pruneConfirmed forgets confirmations every future applicable fetch will
// already reflect. Caller holds mu.
func (s *Sync) pruneConfirmed() {
	for id, c := range s.confirmed {
		if c.seq < s.applied {
			delete(s.confirmed, id)
		}
	}
}

// Remove deletes the order server-side and, once confirmed, locally. On
// failure the list is unchanged and the error is returned.
func (s *Sync) Remove(ctx context.Context, id int64) error {
	if err := s.remote.DeleteOrder(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	s.orders = slices.DeleteFunc(s.orders, func(o api.Order) bool { return o.ID == id })
	s.confirmed[id] = confirmation{seq: s.started}

	s.cacheMu.Lock()
	s.mu.Unlock()
	s.cacheWrite(ctx, "delete", func(ctx context.Context) error { return s.cache.Delete(ctx, id) })
	s.cacheMu.Unlock()

	s.logger.Info("order removed", slog.Int64("order_id", id))

	return nil
}

// Update applies a partial update and adopts the server's view of the order.
func (s *Sync) Update(ctx context.Context, id int64, patch api.OrderPatch) (api.Order, error) {
	if patch.Empty() {
		return api.Order{}, api.Validation("update for order %d changes no fields", id)
	}

	updated, err := s.remote.UpdateOrder(ctx, id, patch)
	if err != nil {
		return api.Order{}, err
	}

	o := *updated

	s.mu.Lock()
	if i := slices.IndexFunc(s.orders, func(x api.Order) bool { return x.ID == id }); i >= 0 {
		s.orders[i] = o
	} else {
		s.orders = append([]api.Order{o}, s.orders...)
	}

	s.confirmed[id] = confirmation{seq: s.started, order: &o}

	s.cacheMu.Lock()
	s.mu.Unlock()
	s.cacheWrite(ctx, "upsert", func(ctx context.Context) error { return s.cache.Upsert(ctx, o) })
	s.cacheMu.Unlock()

	return o, nil
}

// ToggleDiscount flips the order's discount and re-fetches the list so the
// server-computed totals are picked up.
func (s *Sync) ToggleDiscount(ctx context.Context, id int64) ([]api.Order, error) {
	if err := s.remote.ToggleDiscount(ctx, id); err != nil {
		return nil, err
	}

	orders, err := s.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: refreshing after discount change on order %d: %w", id, err)
	}

	return orders, nil
}

// AddPayment records a payment and re-fetches the list. A non-positive
// amount is refused before any network call.
func (s *Sync) AddPayment(ctx context.Context, id int64, amount float64) ([]api.Order, error) {
	if amount <= 0 {
		return nil, api.Validation("payment amount must be positive, got %v", amount)
	}

	if err := s.remote.AddPayment(ctx, id, amount); err != nil {
		return nil, err
	}

	orders, err := s.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("records: refreshing after payment on order %d: %w", id, err)
	}

	return orders, nil
}

// ToDocument renders the order as a document. Callers publish the result
// into the record-preview slot.
func (s *Sync) ToDocument(ctx context.Context, o api.Order) ([]byte, error) {
	return s.remote.FromOrder(ctx, o)
}

// List returns a copy of the current list.
func (s *Sync) List() []api.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.orders)
}

// Get returns the order with the given id from the current list.
func (s *Sync) Get(id int64) (api.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}

	return api.Order{}, false
}

// cacheWrite runs fn against the cache, logging failures. Caller holds
// cacheMu. Cache writes do not follow the caller's cancellation: the
// in-memory change they mirror has already happened.
func (s *Sync) cacheWrite(ctx context.Context, op string, fn func(context.Context) error) {
	if s.cache == nil {
		return
	}

	if err := fn(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("order cache write failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}
