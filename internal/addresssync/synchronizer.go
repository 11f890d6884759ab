// Package addresssync mirrors the user's address book. Mutations are not
// applied optimistically: each one calls the gateway and then re-reads the
// list and the default.
package addresssync

import (
	"context"
	"errors"

	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/domain/address"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/logging"
	"github.com/example/storefront-sync/internal/opt"
	"github.com/example/storefront-sync/internal/optimistic"
	"github.com/sirupsen/logrus"
)

const (
	msgFetchFailed      = "Could not load your addresses"
	msgAddFailed        = "Could not save the address"
	msgSetDefaultFailed = "Could not change the default address"
	msgRemoveFailed     = "Could not delete the address"
)

// State is the observable address book.
type State struct {
	Addresses []address.Address
	Default   opt.Value[address.Address]
	// Selected is an explicit checkout choice; empty means "use the default".
	Selected string
	Loading  bool
	Err      string

	inFlight int
}

type Synchronizer struct {
	gw  gateway.AddressGateway
	log logrus.FieldLogger

	state *optimistic.Store[State]
}

type Option func(*Synchronizer)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Synchronizer) { s.log = l }
}

func New(gw gateway.AddressGateway, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		gw:    gw,
		log:   logging.Discard(),
		state: optimistic.NewStore(State{Addresses: []address.Address{}}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "address")
	return s
}

func (s *Synchronizer) State() State {
	return s.state.Load()
}

func (s *Synchronizer) Addresses() []address.Address {
	return s.state.Load().Addresses
}

func (s *Synchronizer) Default() opt.Value[address.Address] {
	return s.state.Load().Default
}

func (s *Synchronizer) Subscribe(fn func(State)) (cancel func()) {
	return s.state.Subscribe(fn)
}

// Fetch reads the list and the default. Both reads are attempted even if the
// first one fails; whatever succeeded is applied.
func (s *Synchronizer) Fetch(ctx context.Context) error {
	s.begin()
	defer s.end()

	list, listErr := s.gw.GetAddresses(ctx)
	def, defErr := s.gw.GetDefaultAddress(ctx)

	s.state.Update(func(st State) State {
		if listErr == nil {
			st.Addresses = list
		}
		if defErr == nil {
			st.Default = def
		}
		if st.Selected != "" {
			if _, ok := address.Find(st.Addresses, st.Selected); !ok {
				st.Selected = ""
			}
		}
		return st
	})

	err := errors.Join(listErr, defErr)
	if err != nil {
		s.log.WithError(err).Warn("Failed to fetch addresses")
		s.setErr(apperr.Message(err, msgFetchFailed))
		return err
	}
	s.setErr("")
	return nil
}

// Add creates an address. The gateway decides whether it becomes the default.
func (s *Synchronizer) Add(ctx context.Context, fields address.Fields) (address.Address, error) {
	const op = "address.add"
	if err := fields.Validate(); err != nil {
		return address.Address{}, apperr.Validation(op, err)
	}

	var created address.Address
	err := s.mutate(ctx, op, msgAddFailed, func(ctx context.Context) error {
		var err error
		created, err = s.gw.AddAddress(ctx, fields)
		return err
	})
	return created, err
}

func (s *Synchronizer) SetDefault(ctx context.Context, addressID string) error {
	const op = "address.setDefault"
	if addressID == "" {
		return apperr.Validation(op, address.ErrInvalidAddress)
	}
	return s.mutate(ctx, op, msgSetDefaultFailed, func(ctx context.Context) error {
		return s.gw.SetDefaultAddress(ctx, addressID)
	})
}

func (s *Synchronizer) Remove(ctx context.Context, addressID string) error {
	const op = "address.remove"
	if addressID == "" {
		return apperr.Validation(op, address.ErrInvalidAddress)
	}
	return s.mutate(ctx, op, msgRemoveFailed, func(ctx context.Context) error {
		return s.gw.RemoveAddress(ctx, addressID)
	})
}

// Select picks the delivery address used at checkout.
func (s *Synchronizer) Select(addressID string) error {
	if _, ok := address.Find(s.Addresses(), addressID); !ok {
		return apperr.Validation("address.select", address.ErrAddressNotFound)
	}
	s.state.Update(func(st State) State {
		st.Selected = addressID
		return st
	})
	return nil
}

// Selected returns the explicit selection, falling back to the default.
func (s *Synchronizer) Selected() opt.Value[address.Address] {
	st := s.state.Load()
	if st.Selected != "" {
		if a, ok := address.Find(st.Addresses, st.Selected); ok {
			return opt.Some(a)
		}
	}
	return st.Default
}

// mutate runs call and, on success, refreshes from the gateway. A failed
// refresh is returned as a refresh-kind error; the mutation stays done.
// Loading stays set from the call through the refresh.
func (s *Synchronizer) mutate(ctx context.Context, op, fallback string, call func(context.Context) error) error {
	s.begin()
	defer s.end()

	if err := call(ctx); err != nil {
		s.log.WithError(err).WithField("op", op).Warn("Address mutation failed")
		s.setErr(apperr.Message(err, fallback))
		return err
	}

	if err := s.Fetch(ctx); err != nil {
		return apperr.Refresh(op, err)
	}
	return nil
}

func (s *Synchronizer) begin() { s.track(1) }

func (s *Synchronizer) end() { s.track(-1) }

func (s *Synchronizer) track(delta int) {
	s.state.Update(func(st State) State {
		st.inFlight += delta
		st.Loading = st.inFlight > 0
		return st
	})
}

func (s *Synchronizer) setErr(msg string) {
	s.state.Update(func(st State) State {
		st.Err = msg
		return st
	})
}
