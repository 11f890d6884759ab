package cartsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/storefront-sync/internal/activity"
	"github.com/example/storefront-sync/internal/apperr"
	"github.com/example/storefront-sync/internal/domain/cart"
	"github.com/example/storefront-sync/internal/gateway"
	"github.com/example/storefront-sync/internal/gateway/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-123"

type recordingPublisher struct {
	events []activity.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e activity.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func product(id string, price int64) cart.Product {
	return cart.Product{ID: id, ShopID: "shop-1", Name: "Product " + id, SellingPrice: mocks.Price(price), StockQuantity: 10}
}

// newTestSynchronizer returns a synchronizer whose local cart already holds
// the gateway's cart: one line of product 7, quantity 2, price 50.
func newTestSynchronizer(t *testing.T, opts ...Option) (*Synchronizer, *mocks.MockGateway) {
	t.Helper()
	gw := mocks.NewMockGateway(userID)
	gw.AddProduct(product("7", 50))
	gw.AddProduct(product("8", 20))
	gw.SetCart(cart.Item{ID: "item-7", ProductID: "7", Quantity: 2, Product: product("7", 50)})

	opts = append([]Option{WithClock(func() time.Time { return time.UnixMilli(1700000000000) })}, opts...)
	s := New(gw, userID, opts...)
	_, err := s.Fetch(context.Background())
	require.NoError(t, err)
	gw.ResetCalls()
	return s, gw
}

func failure(op, message string) error {
	return apperr.Transport(op, message, gateway.ErrRejected)
}

func assertSummaryConsistent(t *testing.T, c cart.Cart) {
	t.Helper()
	want := cart.Summarize(c.Items)
	assert.Equal(t, want.ItemCount, c.Summary.ItemCount)
	assert.Equal(t, want.Total.StringFixed(2), c.Summary.Total.StringFixed(2))
}

// ============================================
// Fetch
// ============================================

func TestFetch_ReplacesWithAuthoritativeCart(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	gw.SetCart(
		cart.Item{ID: "item-7", ProductID: "7", Quantity: 1, Product: product("7", 50)},
		cart.Item{ID: "item-8", ProductID: "8", Quantity: 2, Product: product("8", 20)},
	)
	got, err := s.Fetch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, got.Summary.ItemCount)
	assert.Equal(t, "90.00", got.Summary.Total.StringFixed(2))
	assert.Equal(t, got, s.Cart())
	assert.Empty(t, s.State().Err)
	assert.False(t, s.State().Loading)
}

func TestFetch_FailureResetsToEmptyCart(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	gw.FailOn(gateway.OpGetCart, failure(gateway.OpGetCart, "Session expired"))

	_, err := s.Fetch(context.Background())

	require.Error(t, err)
	c := s.Cart()
	assert.Empty(t, c.Items)
	assert.NotNil(t, c.Items)
	assert.Equal(t, 0, c.Summary.ItemCount)
	assert.True(t, c.Summary.Total.IsZero())
	assert.Equal(t, "Session expired", s.State().Err)
}

func TestFetch_SuppressErrorKeepsPreviousCart(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	before := s.Cart()
	gw.FailOn(gateway.OpGetCart, errors.New("connection reset"))

	_, err := s.Fetch(context.Background(), SuppressError())

	require.Error(t, err)
	assert.Equal(t, before, s.Cart())
	assert.Equal(t, msgFetchFailed, s.State().Err)
}

// ============================================
// AddItem
// ============================================

func TestAddItem_OptimisticMergeVisibleBeforeResponse(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	var during State
	gw.OnCall(gateway.OpAddCartItem, func() { during = s.State() })

	err := s.AddItem(context.Background(), "7", 1)

	require.NoError(t, err)
	require.Len(t, during.Cart.Items, 1)
	assert.Equal(t, 3, during.Cart.Items[0].Quantity)
	assert.Equal(t, "150.00", during.Cart.Summary.Total.StringFixed(2))
	assert.Equal(t, 1, during.Pending)

	// authoritative state after the refetch
	after := s.Cart()
	require.Len(t, after.Items, 1)
	assert.Equal(t, "item-7", after.Items[0].ID)
	assert.Equal(t, 3, after.Items[0].Quantity)
	assert.Equal(t, "150.00", after.Summary.Total.StringFixed(2))
	assert.Equal(t, 0, s.State().Pending)
	assert.Equal(t, 1, gw.CallCount(gateway.OpGetCart))
}

func TestAddProduct_NewLineUsesTempIDUntilRefetch(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	var during cart.Cart
	gw.OnCall(gateway.OpAddCartItem, func() { during = s.Cart() })

	err := s.AddProduct(context.Background(), product("8", 20), 2)

	require.NoError(t, err)
	line, ok := during.FindByProduct("8")
	require.True(t, ok)
	assert.Equal(t, "temp-8-1700000000000", line.ID)
	assert.Equal(t, "140.00", during.Summary.Total.StringFixed(2))

	after := s.Cart()
	assert.False(t, after.HasPendingItems())
	line, ok = after.FindByProduct("8")
	require.True(t, ok)
	assert.NotEqual(t, "temp-8-1700000000000", line.ID)
	assert.Equal(t, gw.Cart, after)
}

func TestAddItem_FailureRestoresExactSnapshot(t *testing.T) {
	pub := &recordingPublisher{}
	s, gw := newTestSynchronizer(t, WithPublisher(pub))
	before := s.Cart()
	gw.FailOn(gateway.OpAddCartItem, failure(gateway.OpAddCartItem, "Only 2 left in stock"))

	err := s.AddItem(context.Background(), "7", 5)

	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	after := s.Cart()
	assert.Equal(t, before, after)
	assert.Same(t, &before.Items[0], &after.Items[0])
	assert.Equal(t, "Only 2 left in stock", s.State().Err)
	assert.Equal(t, 0, gw.CallCount(gateway.OpGetCart))

	require.Len(t, pub.events, 1)
	assert.Equal(t, activity.EventCartMutationRolledBack, pub.events[0].Type)
}

func TestAddItem_RefetchFailureKeepsSuccess(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	gw.FailOn(gateway.OpGetCart, errors.New("timeout"))

	err := s.AddItem(context.Background(), "7", 1)

	require.NoError(t, err)
	assert.Equal(t, 3, s.Cart().Items[0].Quantity)
	assert.Equal(t, msgFetchFailed, s.State().Err)
}

func TestAddItem_Validation(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	err := s.AddItem(context.Background(), "", 1)
	assert.ErrorIs(t, err, cart.ErrInvalidProduct)

	err = s.AddItem(context.Background(), "7", 0)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
	assert.True(t, apperr.IsValidation(err))

	assert.Zero(t, gw.TotalCalls())
}

// ============================================
// UpdateItem
// ============================================

func TestUpdateItem_NonPositiveQuantityMakesNoCall(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	before := s.Cart()

	for _, qty := range []int{0, -1} {
		err := s.UpdateItem(context.Background(), "item-7", qty)
		assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
		assert.True(t, apperr.IsValidation(err))
	}

	assert.Zero(t, gw.TotalCalls())
	assert.Equal(t, before, s.Cart())
}

func TestUpdateItem_Success(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	var during cart.Cart
	gw.OnCall(gateway.OpUpdateCartItem, func() { during = s.Cart() })

	err := s.UpdateItem(context.Background(), "item-7", 5)

	require.NoError(t, err)
	assert.Equal(t, "250.00", during.Summary.Total.StringFixed(2))
	assert.Equal(t, 5, s.Cart().Items[0].Quantity)
	assert.Equal(t, gw.Cart, s.Cart())
}

func TestUpdateItem_FailureRollsBack(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	before := s.Cart()
	gw.FailOn(gateway.OpUpdateCartItem, errors.New("502 bad gateway"))

	err := s.UpdateItem(context.Background(), "item-7", 5)

	require.Error(t, err)
	assert.Equal(t, before, s.Cart())
	assert.Equal(t, msgUpdateFailed, s.State().Err)
}

func TestUpdateItem_UnknownOrPendingLine(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	err := s.UpdateItem(context.Background(), "item-404", 1)
	assert.ErrorIs(t, err, cart.ErrItemNotFound)

	// leave an unconfirmed line behind by failing the refetch after add
	gw.FailOn(gateway.OpGetCart, errors.New("timeout"))
	require.NoError(t, s.AddItem(context.Background(), "8", 1))
	line, ok := s.Cart().FindByProduct("8")
	require.True(t, ok)
	require.False(t, line.Confirmed())

	calls := gw.TotalCalls()
	err = s.UpdateItem(context.Background(), line.ID, 2)
	assert.ErrorIs(t, err, cart.ErrItemPending)
	assert.Equal(t, calls, gw.TotalCalls())
}

// ============================================
// RemoveItem / Clear
// ============================================

func TestRemoveItem_Success(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	var during cart.Cart
	gw.OnCall(gateway.OpRemoveCartItem, func() { during = s.Cart() })

	err := s.RemoveItem(context.Background(), "item-7")

	require.NoError(t, err)
	assert.Empty(t, during.Items)
	assert.Empty(t, s.Cart().Items)
}

func TestRemoveItem_FailureRollsBack(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	before := s.Cart()
	gw.FailOn(gateway.OpRemoveCartItem, failure(gateway.OpRemoveCartItem, ""))

	err := s.RemoveItem(context.Background(), "item-7")

	require.Error(t, err)
	assert.Equal(t, before, s.Cart())
	assert.Equal(t, msgRemoveFailed, s.State().Err)
}

func TestClear_OptimisticThenRollback(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	before := s.Cart()
	gw.FailOn(gateway.OpClearCart, errors.New("timeout"))

	var during cart.Cart
	gw.OnCall(gateway.OpClearCart, func() { during = s.Cart() })

	err := s.Clear(context.Background())

	require.Error(t, err)
	assert.Empty(t, during.Items)
	assert.Equal(t, 0, during.Summary.ItemCount)
	assert.Equal(t, before, s.Cart())
}

func TestClear_Success(t *testing.T) {
	s, gw := newTestSynchronizer(t)

	require.NoError(t, s.Clear(context.Background()))

	assert.True(t, s.Cart().IsEmpty())
	assert.True(t, gw.Cart.IsEmpty())
	assert.Equal(t, 0, gw.CallCount(gateway.OpGetCart))
}

// ============================================
// Invariants
// ============================================

func TestSummaryInvariantHoldsAfterEveryOperation(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	ctx := context.Background()

	var observed []cart.Cart
	cancel := s.Subscribe(func(st State) { observed = append(observed, st.Cart) })
	defer cancel()

	require.NoError(t, s.AddItem(ctx, "8", 3))
	line, _ := s.Cart().FindByProduct("8")
	require.NoError(t, s.UpdateItem(ctx, line.ID, 1))
	require.NoError(t, s.AddItem(ctx, "7", 2))
	require.NoError(t, s.RemoveItem(ctx, "item-7"))

	require.NotEmpty(t, observed)
	for _, c := range observed {
		assertSummaryConsistent(t, c)
	}

	final := s.Cart()
	assert.Equal(t, 1, final.Summary.ItemCount)
	assert.Equal(t, "20.00", final.Summary.Total.StringFixed(2))

	_, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, gw.Cart, s.Cart())
	assert.False(t, s.Cart().HasPendingItems())
}

func TestSerializedMutations_StillReconcile(t *testing.T) {
	s, gw := newTestSynchronizer(t, WithSerializedMutations())

	require.NoError(t, s.AddItem(context.Background(), "7", 1))
	require.NoError(t, s.UpdateItem(context.Background(), "item-7", 4))

	assert.Equal(t, gw.Cart, s.Cart())
	assert.Equal(t, 4, s.Cart().Summary.ItemCount)
}

// ============================================
// Concurrency
// ============================================

// stallingGateway lets one armed GetCart read the server cart and then hold
// the result until release is closed.
type stallingGateway struct {
	*mocks.MockGateway
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newStallingGateway(gw *mocks.MockGateway) *stallingGateway {
	return &stallingGateway{MockGateway: gw, read: make(chan struct{}), release: make(chan struct{})}
}

func (g *stallingGateway) GetCart(ctx context.Context) (cart.Cart, error) {
	c, err := g.MockGateway.GetCart(ctx)
	if g.armed.CompareAndSwap(true, false) {
		close(g.read)
		<-g.release
	}
	return c, err
}

func TestAddItem_RefetchIgnoresOlderFetchInFlight(t *testing.T) {
	_, mock := newTestSynchronizer(t)
	gw := newStallingGateway(mock)
	s := New(gw, userID, WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	ctx := context.Background()

	_, err := s.Fetch(ctx)
	require.NoError(t, err)
	mock.ResetCalls()

	gw.armed.Store(true)
	olderDone := make(chan error, 1)
	go func() {
		_, err := s.Fetch(ctx)
		olderDone <- err
	}()
	<-gw.read

	require.NoError(t, s.AddItem(ctx, "8", 1))
	assert.Len(t, s.Cart().Items, 2)

	close(gw.release)
	require.NoError(t, <-olderDone)

	assert.Equal(t, mock.Cart, s.Cart())
	assert.Len(t, s.Cart().Items, 2)
	assert.False(t, s.Cart().HasPendingItems())
	assert.Equal(t, 2, mock.CallCount(gateway.OpGetCart))
}

func TestConcurrentMutations_NestedUpdateDuringAdd(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	ctx := context.Background()

	var once sync.Once
	var updateErr error
	gw.OnCall(gateway.OpAddCartItem, func() {
		once.Do(func() { updateErr = s.UpdateItem(ctx, "item-7", 5) })
	})

	require.NoError(t, s.AddItem(ctx, "8", 1))
	require.NoError(t, updateErr)

	assert.Equal(t, gw.Cart, s.Cart())
	assert.Equal(t, 6, s.Cart().Summary.ItemCount)
	assert.Equal(t, "270.00", s.Cart().Summary.Total.StringFixed(2))
	assert.Zero(t, s.State().Pending)
}

func TestConcurrentMutations_RemoveWhileAddInFlight(t *testing.T) {
	s, gw := newTestSynchronizer(t)
	ctx := context.Background()

	inFlight := make(chan struct{})
	release := make(chan struct{})
	gw.OnCall(gateway.OpAddCartItem, func() {
		close(inFlight)
		<-release
	})

	addDone := make(chan error, 1)
	go func() { addDone <- s.AddItem(ctx, "8", 1) }()
	<-inFlight
	assert.Equal(t, 1, s.State().Pending)

	require.NoError(t, s.RemoveItem(ctx, "item-7"))
	close(release)
	require.NoError(t, <-addDone)

	assert.Equal(t, gw.Cart, s.Cart())
	require.Len(t, s.Cart().Items, 1)
	assert.Equal(t, "8", s.Cart().Items[0].ProductID)
	assert.Equal(t, "20.00", s.Cart().Summary.Total.StringFixed(2))
	assert.Zero(t, s.State().Pending)
}
