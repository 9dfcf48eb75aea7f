package admin

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

type mockOrders struct {
	order.Repository
	statuses []order.Status
	err      error
}

func (m *mockOrders) Count(context.Context) (int64, error) { return 7, m.err }

func (m *mockOrders) Revenue(_ context.Context, statuses ...order.Status) (decimal.Decimal, error) {
	m.statuses = statuses
	return decimal.RequireFromString("1234.50"), nil
}

type mockUsers struct{ user.Repository }

func (mockUsers) Count(context.Context) (int64, error) { return 3, nil }

type mockProducts struct{ product.Repository }

func (mockProducts) Count(context.Context) (int64, error) { return 12, nil }

type mockSellers struct{ seller.Repository }

func (mockSellers) CountPending(context.Context) (int64, error) { return 2, nil }

func TestStats(t *testing.T) {
	orders := &mockOrders{}
	svc := NewService(orders, mockUsers{}, mockProducts{}, mockSellers{})

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7), st.TotalOrders)
	assert.Equal(t, "1234.50", st.TotalRevenue.StringFixed(2))
	assert.Equal(t, int64(3), st.TotalUsers)
	assert.Equal(t, int64(12), st.TotalProducts)
	assert.Equal(t, int64(2), st.PendingSellers)
	assert.ElementsMatch(t, []order.Status{
		order.StatusPaid, order.StatusProcessing, order.StatusShipped, order.StatusDelivered,
	}, orders.statuses)
}

func TestStats_Error(t *testing.T) {
	orders := &mockOrders{err: errors.New("db down")}
	svc := NewService(orders, mockUsers{}, mockProducts{}, mockSellers{})

	_, err := svc.Stats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count orders")
}
