// Package cartsync keeps the session's local cart view consistent with the
// remote cart using optimistic mutation with rollback.
package cartsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/storefront-sync/internal/activity"
	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/logging"
	"github.com/example/storefront-sync/internal/optimistic"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	msgFetchFailed  = "Could not load your cart"
	msgAddFailed    = "Could not add the item to your cart"
	msgUpdateFailed = "Could not update the item quantity"
	msgRemoveFailed = "Could not remove the item"
	msgClearFailed  = "Could not clear your cart"
)

// State is what the UI layer observes.
type State struct {
	Cart    cart.Cart
	Loading bool
	// Pending counts mutations still waiting on the gateway.
	Pending int
	// Err is the message of the last failure, empty after a success.
	Err string
}

type flags struct {
	loading int
	pending int
	err     string
}

// Synchronizer owns the local cart snapshot of one session.
//
// Every mutation runs snapshot -> optimistic apply -> gateway call, then an
// authoritative refetch on success or a restore of the snapshot on failure.
// Mutations issued concurrently are not serialized unless
// WithSerializedMutations is set: each one snapshots and reconciles on its
// own, and whichever authoritative refetch lands last defines the cart.
type Synchronizer struct {
	gw        gateway.CartGateway
	userID    string
	log       logrus.FieldLogger
	publisher activity.Publisher
	now       func() time.Time

	carts *optimistic.Store[cart.Cart]
	flags *optimistic.Store[flags]
	fetch singleflight.Group

	// reads numbers gateway reads in start order; installed is the number of
	// the newest read whose cart is in carts.
	reads     atomic.Uint64
	installMu sync.Mutex
	installed uint64

	serialize bool
	mu        sync.Mutex
}

type Option func(*Synchronizer)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Synchronizer) { s.log = l }
}

func WithPublisher(p activity.Publisher) Option {
	return func(s *Synchronizer) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithSerializedMutations runs mutations one at a time to avoid flicker.
func WithSerializedMutations() Option {
	return func(s *Synchronizer) { s.serialize = true }
}

func New(gw gateway.CartGateway, userID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		gw:        gw,
		userID:    userID,
		log:       logging.Discard(),
		publisher: activity.Nop{},
		now:       time.Now,
		carts:     optimistic.NewStore(cart.Empty(userID)),
		flags:     optimistic.NewStore(flags{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logrus.Fields{"component": "cart", "user_id": userID})
	return s
}

func (s *Synchronizer) Cart() cart.Cart {
	return s.carts.Load()
}

func (s *Synchronizer) State() State {
	f := s.flags.Load()
	return State{
		Cart:    s.carts.Load(),
		Loading: f.loading > 0,
		Pending: f.pending,
		Err:     f.err,
	}
}

// Subscribe calls fn with the full state after every change.
func (s *Synchronizer) Subscribe(fn func(State)) (cancel func()) {
	cancelCart := s.carts.Subscribe(func(cart.Cart) { fn(s.State()) })
	cancelFlags := s.flags.Subscribe(func(flags) { fn(s.State()) })
	return func() {
		cancelCart()
		cancelFlags()
	}
}

type fetchOptions struct {
	suppressError bool
	fresh         bool
}

type FetchOption func(*fetchOptions)

// SuppressError keeps the current cart when the fetch fails; only the error
// flag is set. Meant for background refreshes.
func SuppressError() FetchOption {
	return func(o *fetchOptions) { o.suppressError = true }
}

// fresh starts a new gateway read instead of joining one already in flight,
// which may predate the caller's mutation.
func fresh() FetchOption {
	return func(o *fetchOptions) { o.fresh = true }
}

type read struct {
	seq  uint64
	cart cart.Cart
}

// Fetch replaces the local cart with the authoritative one. On failure the
// local cart becomes the explicit empty cart unless SuppressError is given.
// Concurrent fetches share one gateway call. A read never replaces a cart
// installed by a read that started after it.
func (s *Synchronizer) Fetch(ctx context.Context, opts ...FetchOption) (cart.Cart, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.track(func(f *flags) { f.loading++ })
	defer s.track(func(f *flags) { f.loading-- })

	const key = "cart"
	if o.fresh {
		s.fetch.Forget(key)
	}
	v, err, _ := s.fetch.Do(key, func() (any, error) {
		seq := s.reads.Add(1)
		c, err := s.gw.GetCart(ctx)
		return read{seq: seq, cart: c}, err
	})
	r := v.(read)

	if err != nil {
		s.log.WithError(err).WithField("suppressed", o.suppressError).Warn("Failed to fetch cart")
		s.setErr(apperr.Message(err, msgFetchFailed))
		if !o.suppressError {
			s.install(r.seq, cart.Empty(s.userID))
		}
		return s.carts.Load(), err
	}

	if !s.install(r.seq, cart.Normalize(r.cart)) {
		s.log.WithField("read", r.seq).Debug("Discarded cart read overtaken by a newer one")
		return s.carts.Load(), nil
	}
	s.setErr("")
	return s.carts.Load(), nil
}

// install swaps c in unless a newer read is already installed.
func (s *Synchronizer) install(seq uint64, c cart.Cart) bool {
	s.installMu.Lock()
	defer s.installMu.Unlock()
	if seq < s.installed {
		return false
	}
	s.installed = seq
	s.carts.Swap(c)
	return true
}

// AddItem adds quantity of a product by id. A new line shows with a zero
// price until the refetch brings the product snapshot.
func (s *Synchronizer) AddItem(ctx context.Context, productID string, quantity int) error {
	return s.AddProduct(ctx, cart.Product{ID: productID}, quantity)
}

// AddProduct adds quantity of p, using p as the display snapshot of a new line.
func (s *Synchronizer) AddProduct(ctx context.Context, p cart.Product, quantity int) error {
	const op = "cart.add"
	if p.ID == "" {
		return apperr.Validation(op, cart.ErrInvalidProduct)
	}
	if quantity <= 0 {
		return apperr.Validation(op, cart.ErrInvalidQuantity)
	}

	err := s.mutate(ctx, op, msgAddFailed,
		func(c cart.Cart) cart.Cart { return c.MergeAdd(p, quantity, s.now()) },
		func(ctx context.Context) error {
			_, err := s.gw.AddCartItem(ctx, p.ID, quantity)
			return err
		})
	if err != nil {
		return err
	}

	s.refresh(ctx)
	return nil
}

// UpdateItem sets the quantity of one line. quantity must be positive.
func (s *Synchronizer) UpdateItem(ctx context.Context, itemID string, quantity int) error {
	const op = "cart.update"
	if quantity <= 0 {
		return apperr.Validation(op, cart.ErrInvalidQuantity)
	}
	if err := s.checkAddressable(op, itemID); err != nil {
		return err
	}

	err := s.mutate(ctx, op, msgUpdateFailed,
		func(c cart.Cart) cart.Cart { return c.SetQuantity(itemID, quantity) },
		func(ctx context.Context) error {
			_, err := s.gw.UpdateCartItem(ctx, itemID, quantity)
			return err
		})
	if err != nil {
		return err
	}

	s.refresh(ctx)
	return nil
}

func (s *Synchronizer) RemoveItem(ctx context.Context, itemID string) error {
	const op = "cart.remove"
	if err := s.checkAddressable(op, itemID); err != nil {
		return err
	}

	err := s.mutate(ctx, op, msgRemoveFailed,
		func(c cart.Cart) cart.Cart { return c.Without(itemID) },
		func(ctx context.Context) error {
			_, err := s.gw.RemoveCartItem(ctx, itemID)
			return err
		})
	if err != nil {
		return err
	}

	s.refresh(ctx)
	return nil
}

// Clear empties the cart immediately; the prior cart comes back if the gateway refuses.
func (s *Synchronizer) Clear(ctx context.Context) error {
	return s.mutate(ctx, "cart.clear", msgClearFailed,
		func(c cart.Cart) cart.Cart { return c.Cleared() },
		s.gw.ClearCart)
}

// checkAddressable rejects ids the server could not act on.
func (s *Synchronizer) checkAddressable(op, itemID string) error {
	item, ok := s.carts.Load().Find(itemID)
	if !ok {
		return apperr.Validation(op, cart.ErrItemNotFound)
	}
	if !item.Confirmed() {
		return apperr.Validation(op, cart.ErrItemPending)
	}
	return nil
}

func (s *Synchronizer) mutate(
	ctx context.Context,
	op, fallback string,
	apply func(cart.Cart) cart.Cart,
	call func(context.Context) error,
) error {
	if s.serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	s.track(func(f *flags) { f.pending++ })
	defer s.track(func(f *flags) { f.pending-- })

	m := optimistic.Begin(s.carts)
	m.Apply(apply)

	if err := call(ctx); err != nil {
		_ = m.Rollback()
		msg := apperr.Message(err, fallback)
		s.setErr(msg)
		s.log.WithError(err).WithField("op", op).Warn("Cart mutation failed, rolled back")
		activity.Emit(ctx, s.publisher, s.log, activity.NewEvent(
			activity.EventCartMutationRolledBack, s.userID, s.userID,
			activity.CartMutationRolledBack{Operation: op, Reason: msg},
		))
		return err
	}

	_ = m.Commit()
	s.setErr("")
	return nil
}

// refresh follows a successful mutation; its failure is recorded in the
// error flag without discarding the optimistic state.
func (s *Synchronizer) refresh(ctx context.Context) {
	if _, err := s.Fetch(ctx, SuppressError(), fresh()); err != nil {
		s.log.WithError(err).Debug("Post-mutation refetch failed")
	}
}

func (s *Synchronizer) track(fn func(*flags)) {
	s.flags.Update(func(f flags) flags {
		fn(&f)
		return f
	})
}

func (s *Synchronizer) setErr(msg string) {
	s.track(func(f *flags) { f.err = msg })
}
