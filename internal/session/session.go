// Package session wires the synchronizers for one signed-in user. A Session
// is created on sign-in and closed on sign-out.
package session

import (
	"context"
	"sync"

	"github.com/example/storefront-sync/internal/activity"
	"github.com/example/storefront-sync/internal/addresssync"
	"github.com/example/storefront-sync/internal/auth"
	"github.com/example/storefront-sync/internal/cartsync"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/logging"
	"github.com/example/storefront-sync/internal/ordersync"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Session struct {
	Claims    *auth.Claims
	Cart      *cartsync.Synchronizer
	Addresses *addresssync.Synchronizer
	Orders    *ordersync.Orchestrator

	log       logrus.FieldLogger
	publisher activity.Publisher

	mu      sync.Mutex
	cancels []func()
	closed  bool
}

type options struct {
	log       logrus.FieldLogger
	publisher activity.Publisher
	serialize bool
}

type Option func(*options)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithPublisher sends activity events to p. The session closes p on Close.
func WithPublisher(p activity.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithSerializedMutations() Option {
	return func(o *options) { o.serialize = true }
}

// New scopes a session to the user in token. The token is only decoded
// here; the gateway is what verifies it.
func New(gw gateway.Gateway, token string, opts ...Option) (*Session, error) {
	o := options{log: logging.Discard(), publisher: activity.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}

	claims, err := auth.ParseClaims(token)
	if err != nil {
		return nil, err
	}

	cartOpts := []cartsync.Option{cartsync.WithLogger(o.log), cartsync.WithPublisher(o.publisher)}
	if o.serialize {
		cartOpts = append(cartOpts, cartsync.WithSerializedMutations())
	}
	carts := cartsync.New(gw, claims.UserID, cartOpts...)
	addresses := addresssync.New(gw, addresssync.WithLogger(o.log))
	orders := ordersync.New(gw, carts, addresses, claims.UserID,
		ordersync.WithLogger(o.log), ordersync.WithPublisher(o.publisher))

	return &Session{
		Claims:    claims,
		Cart:      carts,
		Addresses: addresses,
		Orders:    orders,
		log:       o.log.WithFields(logrus.Fields{"component": "session", "user_id": claims.UserID}),
		publisher: o.publisher,
	}, nil
}

// Initialize loads the cart, the address book and the order list; sellers
// also get their shop's orders. All reads run even if one fails, and the
// first error is returned.
func (s *Session) Initialize(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := s.Cart.Fetch(ctx)
		return err
	})
	g.Go(func() error {
		return s.Addresses.Fetch(ctx)
	})
	g.Go(func() error {
		_, err := s.Orders.FetchOrders(ctx)
		return err
	})
	if s.Claims.IsSeller() {
		g.Go(func() error {
			_, err := s.Orders.FetchShopOrders(ctx, s.Claims.ShopID)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.log.WithError(err).Warn("Session initialized with errors")
		return err
	}
	s.log.Info("Session initialized")
	return nil
}

// OnChange calls fn after any synchronizer publishes new state, until Close.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancels = append(s.cancels,
		s.Cart.Subscribe(func(cartsync.State) { fn() }),
		s.Addresses.Subscribe(func(addresssync.State) { fn() }),
		s.Orders.Subscribe(func(ordersync.State) { fn() }),
	)
}

// Close drops every subscription and closes the activity publisher.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return s.publisher.Close()
}
