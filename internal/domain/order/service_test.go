package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

// --- Mock implementations ---

type mockProductRepo struct {
	product.Repository
	byID map[string]product.Product
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockUserRepo struct {
	user.Repository
	byID map[string]user.User
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

type mockSellerRepo struct {
	seller.Repository
	byUser map[string]seller.Seller
}

func (m *mockSellerRepo) GetByUserID(_ context.Context, userID string) (*seller.Seller, error) {
	s, ok := m.byUser[userID]
	if !ok {
		return nil, seller.ErrNotFound
	}
	return &s, nil
}

type mockOrderRepo struct {
	Repository
	byID      map[string]*Order
	finalized *Order
	err       error
}

func (m *mockOrderRepo) Finalize(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	m.finalized = o
	m.byID[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusChanged
	}
	o.Status = to
	return nil
}

type mockNotifier struct {
	calls int
	err   error
	ctx   context.Context
}

func (m *mockNotifier) NotifyOrderConfirmed(ctx context.Context, _ user.User, _ *Order) error {
	m.calls++
	m.ctx = ctx
	return m.err
}

// --- Helpers ---

type fixture struct {
	svc      *Service
	orders   *mockOrderRepo
	notifier *mockNotifier
}

func newFixture() *fixture {
	products := &mockProductRepo{byID: map[string]product.Product{
		"p1": {ID: "p1", Name: "Honey", Price: decimal.NewFromInt(100), SellerID: "s1"},
		"p2": {ID: "p2", Name: "Pottery", Price: decimal.NewFromInt(50), SellerID: "s2"},
		"p3": {ID: "p3", Name: "Candle", Price: decimal.RequireFromString("19.99"), SellerID: "s2"},
		"p4": {ID: "p4", Name: "Wax Strip", Price: decimal.RequireFromString("0.125"), SellerID: "s2"},
	}}
	users := &mockUserRepo{byID: map[string]user.User{
		"buyer":  {ID: "buyer", Username: "buyer", Email: "buyer@example.com"},
		"owner1": {ID: "owner1"},
	}}
	sellers := &mockSellerRepo{byUser: map[string]seller.Seller{
		"owner1": {ID: "s1", UserID: "owner1"},
		"owner3": {ID: "s3", UserID: "owner3"},
	}}
	orders := &mockOrderRepo{byID: make(map[string]*Order)}
	notifier := &mockNotifier{}
	return &fixture{
		svc:      NewService(orders, users, products, sellers, notifier, time.Second),
		orders:   orders,
		notifier: notifier,
	}
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validRequest() FinalizeRequest {
	return FinalizeRequest{
		UserID: "buyer",
		Lines: []LineRequest{
			{ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(100)},
			{ProductID: "p2", Quantity: 1, Price: decimal.NewFromInt(50)},
		},
		Amount: amount("250"),
	}
}

// --- Tests ---

func TestFinalize(t *testing.T) {
	f := newFixture()

	o, err := f.svc.Finalize(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "buyer", o.UserID)
	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, "250.00", o.Total.StringFixed(2))
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "s1", o.Lines[0].SellerID)
	assert.Equal(t, "Honey", o.Lines[0].Name)
	assert.Equal(t, "s2", o.Lines[1].SellerID)
	assert.Same(t, o, f.orders.finalized)
	assert.Equal(t, []string{"p1", "p2"}, o.ProductIDs())
	assert.Equal(t, 1, f.notifier.calls)
}

func TestFinalize_Paid(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.Paid = true
	req.TransactionID = "txn-1"

	o, err := f.svc.Finalize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "txn-1", o.TransactionID)
}

func TestFinalize_TotalMismatch(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.Amount = amount("200")

	_, err := f.svc.Finalize(context.Background(), req)

	var tm *TotalMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "200.00", tm.Claimed.StringFixed(2))
	assert.Equal(t, "250.00", tm.Computed.StringFixed(2))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Nil(t, f.orders.finalized)
	assert.Zero(t, f.notifier.calls)
}

func TestFinalize_FractionalTotal(t *testing.T) {
	f := newFixture()

	o, err := f.svc.Finalize(context.Background(), FinalizeRequest{
		UserID: "buyer",
		Lines:  []LineRequest{{ProductID: "p3", Quantity: 3, Price: decimal.RequireFromString("19.99")}},
		Amount: amount("59.970"),
	})
	require.NoError(t, err)
	assert.Equal(t, "59.97", o.Total.StringFixed(2))
}

func TestFinalize_SubCentAmount(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.Amount = amount("249.995")

	_, err := f.svc.Finalize(context.Background(), req)

	var tm *TotalMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "249.995", tm.Claimed.String())
	assert.Equal(t, "250", tm.Computed.String())
	assert.Nil(t, f.orders.finalized)
}

func TestFinalize_SubCentPrice(t *testing.T) {
	line := LineRequest{ProductID: "p4", Quantity: 1, Price: decimal.RequireFromString("0.125")}

	t.Run("RoundedClaim", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Finalize(context.Background(), FinalizeRequest{
			UserID: "buyer",
			Lines:  []LineRequest{line},
			Amount: amount("0.13"),
		})
		var tm *TotalMismatchError
		require.ErrorAs(t, err, &tm)
		assert.Nil(t, f.orders.finalized)
	})
	t.Run("ExactClaim", func(t *testing.T) {
		f := newFixture()
		o, err := f.svc.Finalize(context.Background(), FinalizeRequest{
			UserID: "buyer",
			Lines:  []LineRequest{line},
			Amount: amount("0.125"),
		})
		require.NoError(t, err)
		assert.Equal(t, "0.125", o.Total.String())
		assert.True(t, o.Total.Equal(o.Lines[0].Price))
	})
}

func TestFinalize_Validation(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*FinalizeRequest)
		kind   apperr.Kind
	}{
		{"Empty", func(r *FinalizeRequest) { r.Lines = nil }, apperr.KindValidation},
		{"NoAmount", func(r *FinalizeRequest) { r.Amount = nil }, apperr.KindValidation},
		{"ZeroQuantity", func(r *FinalizeRequest) { r.Lines[0].Quantity = 0 }, apperr.KindValidation},
		{"NegativePrice", func(r *FinalizeRequest) {
			r.Lines = []LineRequest{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(-1)}}
			r.Amount = amount("-1")
		}, apperr.KindValidation},
		{"UnknownUser", func(r *FinalizeRequest) { r.UserID = "ghost" }, apperr.KindNotFound},
		{"UnknownProduct", func(r *FinalizeRequest) {
			r.Lines = append(r.Lines, LineRequest{ProductID: "gone", Quantity: 1, Price: decimal.Zero})
		}, apperr.KindNotFound},
		{"PriceChanged", func(r *FinalizeRequest) {
			r.Lines = []LineRequest{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(90)}}
			r.Amount = amount("90")
		}, apperr.KindValidation},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := validRequest()
			tt.modify(&req)

			_, err := f.svc.Finalize(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Nil(t, f.orders.finalized)
		})
	}
}

func TestFinalize_NotifierFailureKeepsOrder(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("broker down")

	o, err := f.svc.Finalize(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotNil(t, f.orders.finalized)
	assert.Equal(t, o.ID, f.orders.finalized.ID)
	assert.Equal(t, 1, f.notifier.calls)
}

func TestFinalize_NotifyOutlivesRequest(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.svc.Finalize(ctx, validRequest())
	require.NoError(t, err)

	require.NotNil(t, f.notifier.ctx)
	cancel()
	assert.NoError(t, f.notifier.ctx.Err())
	_, ok := f.notifier.ctx.Deadline()
	assert.True(t, ok)
}

func TestFinalize_StoreError(t *testing.T) {
	f := newFixture()
	f.orders.err = apperr.Store(errors.New("connection reset"), "insert order")

	_, err := f.svc.Finalize(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStore))
	assert.Zero(t, f.notifier.calls)
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusCreated.CanTransition(StatusPaid))
	assert.True(t, StatusPaid.CanTransition(StatusRefunded))
	assert.True(t, StatusShipped.CanTransition(StatusDelivered))
	assert.False(t, StatusShipped.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusPaid))
	assert.False(t, StatusRefunded.CanTransition(StatusCreated))
	assert.False(t, StatusCreated.CanTransition(StatusDelivered))
}

func placed(t *testing.T, f *fixture) *Order {
	t.Helper()
	o, err := f.svc.Finalize(context.Background(), validRequest())
	require.NoError(t, err)
	return o
}

func TestUpdateStatus_Owner(t *testing.T) {
	f := newFixture()
	o := placed(t, f)
	ctx := context.Background()

	updated, err := f.svc.UpdateStatus(ctx, Actor{UserID: "buyer"}, o.ID, StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: "buyer"}, o.ID, StatusProcessing)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestUpdateStatus_Seller(t *testing.T) {
	f := newFixture()
	o := placed(t, f)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, Actor{UserID: "owner1"}, o.ID, StatusProcessing)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: "owner1"}, o.ID, StatusShipped)
	require.NoError(t, err)

	// Seller s3 has no line in the order.
	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: "owner3"}, o.ID, StatusDelivered)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	// Buyer without a storefront.
	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: "buyer"}, o.ID, StatusDelivered)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestUpdateStatus_Admin(t *testing.T) {
	f := newFixture()
	o := placed(t, f)

	_, err := f.svc.UpdateStatus(context.Background(), Actor{UserID: "root", Admin: true}, o.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, f.orders.byID[o.ID].Status)
}

func TestUpdateStatus_Illegal(t *testing.T) {
	f := newFixture()
	o := placed(t, f)
	admin := Actor{UserID: "root", Admin: true}

	_, err := f.svc.UpdateStatus(context.Background(), admin, o.ID, StatusDelivered)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpdateStatus(context.Background(), admin, o.ID, "lost")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.UpdateStatus(context.Background(), admin, "missing", StatusPaid)
	assert.ErrorIs(t, err, ErrNotFound)
}
