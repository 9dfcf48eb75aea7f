package handler

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/domain/cart"
	"github.com/makehive/marketplace/internal/domain/order"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
	"github.com/makehive/marketplace/internal/domain/user"
)

// In-memory repositories backing the handler tests.

type memUsers struct {
	users []user.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) List(context.Context) ([]user.User, error) { return m.users, nil }

func (m *memUsers) Count(context.Context) (int64, error) { return int64(len(m.users)), nil }

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.users = append(m.users, *u)
	return nil
}

type memSellers struct {
	sellers []seller.Seller
}

func (m *memSellers) find(match func(seller.Seller) bool) (*seller.Seller, error) {
	for i := range m.sellers {
		if match(m.sellers[i]) {
			s := m.sellers[i]
			return &s, nil
		}
	}
	return nil, seller.ErrNotFound
}

func (m *memSellers) GetByID(_ context.Context, id string) (*seller.Seller, error) {
	return m.find(func(s seller.Seller) bool { return s.ID == id })
}

func (m *memSellers) GetByUserID(_ context.Context, userID string) (*seller.Seller, error) {
	return m.find(func(s seller.Seller) bool { return s.UserID == userID })
}

func (m *memSellers) GetByIDs(_ context.Context, ids []string) ([]seller.Seller, error) {
	var out []seller.Seller
	for _, s := range m.sellers {
		if slices.Contains(ids, s.ID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSellers) List(context.Context) ([]seller.Seller, error) { return m.sellers, nil }

func (m *memSellers) Create(_ context.Context, s *seller.Seller) error {
	m.sellers = append(m.sellers, *s)
	return nil
}

func (m *memSellers) UpdatePayout(_ context.Context, id, address string) error {
	for i := range m.sellers {
		if m.sellers[i].ID == id {
			m.sellers[i].PayoutAddress = address
			return nil
		}
	}
	return seller.ErrNotFound
}

func (m *memSellers) SetVerified(_ context.Context, id string, verified bool) error {
	for i := range m.sellers {
		if m.sellers[i].ID == id {
			m.sellers[i].Verified = verified
			return nil
		}
	}
	return seller.ErrNotFound
}

func (m *memSellers) SetRating(_ context.Context, id string, rating float64, numReviews int) error {
	for i := range m.sellers {
		if m.sellers[i].ID == id {
			m.sellers[i].Rating = rating
			m.sellers[i].NumReviews = numReviews
			return nil
		}
	}
	return seller.ErrNotFound
}

func (m *memSellers) CountPending(context.Context) (int64, error) {
	var n int64
	for _, s := range m.sellers {
		if !s.Verified {
			n++
		}
	}
	return n, nil
}

type memProducts struct {
	products []product.Product
	reviews  map[string][]product.Review
}

func (m *memProducts) List(_ context.Context, f product.Filter) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.products {
		if f.SellerID == "" || p.SellerID == f.SellerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *memProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.products {
		if slices.Contains(ids, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) Search(context.Context, string) ([]product.Product, error) {
	return m.products, nil
}

func (m *memProducts) Create(_ context.Context, p *product.Product) error {
	m.products = append(m.products, *p)
	return nil
}

func (m *memProducts) Delete(_ context.Context, id, sellerID string) error {
	for i, p := range m.products {
		if p.ID == id && p.SellerID == sellerID {
			m.products = slices.Delete(m.products, i, i+1)
			return nil
		}
	}
	return product.ErrNotFound
}

func (m *memProducts) AddReview(_ context.Context, productID string, r product.Review) error {
	i := slices.IndexFunc(m.products, func(p product.Product) bool { return p.ID == productID })
	if i < 0 {
		return product.ErrNotFound
	}
	if slices.ContainsFunc(m.reviews[productID], func(rv product.Review) bool { return rv.UserID == r.UserID }) {
		return product.ErrAlreadyReviewed
	}
	if m.reviews == nil {
		m.reviews = make(map[string][]product.Review)
	}
	m.reviews[productID] = append(m.reviews[productID], r)
	var sum int
	for _, rv := range m.reviews[productID] {
		sum += rv.Rating
	}
	m.products[i].NumReviews = len(m.reviews[productID])
	m.products[i].Rating = float64(sum) / float64(m.products[i].NumReviews)
	return nil
}

func (m *memProducts) Reviews(_ context.Context, productID string) ([]product.Review, error) {
	return m.reviews[productID], nil
}

func (m *memProducts) Count(context.Context) (int64, error) { return int64(len(m.products)), nil }

type memCarts struct {
	mu    sync.Mutex
	lines map[string][]cart.Line
}

func (m *memCarts) Lines(_ context.Context, userID string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lines[userID]), nil
}

func (m *memCarts) Upsert(_ context.Context, userID, productID string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.lines[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			if lines[i].Quantity+delta > cart.MaxQuantity {
				return 0, cart.ErrQuantityLimit
			}
			lines[i].Quantity += delta
			qty := lines[i].Quantity
			if qty < 1 {
				m.lines[userID] = slices.Delete(lines, i, i+1)
				return 0, nil
			}
			return qty, nil
		}
	}
	if delta < 1 {
		return 0, nil
	}
	if delta > cart.MaxQuantity {
		return 0, cart.ErrQuantityLimit
	}
	m.lines[userID] = append(lines, cart.Line{ProductID: productID, Quantity: delta})
	return delta, nil
}

func (m *memCarts) Remove(_ context.Context, userID string, productIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[userID] = slices.DeleteFunc(m.lines[userID], func(l cart.Line) bool {
		return slices.Contains(productIDs, l.ProductID)
	})
	return nil
}

type memOrders struct {
	carts  *memCarts
	orders []order.Order
}

func (m *memOrders) Finalize(ctx context.Context, o *order.Order) error {
	m.orders = append(m.orders, *o)
	return m.carts.Remove(ctx, o.UserID, o.ProductIDs()...)
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOrders) List(context.Context) ([]order.Order, error) { return m.orders, nil }

func (m *memOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	for i := range m.orders {
		if m.orders[i].ID == id {
			if m.orders[i].Status != from {
				return order.ErrStatusChanged
			}
			m.orders[i].Status = to
			return nil
		}
	}
	return order.ErrNotFound
}

func (m *memOrders) DeleteByUser(_ context.Context, userID string) (int64, error) {
	before := len(m.orders)
	m.orders = slices.DeleteFunc(m.orders, func(o order.Order) bool { return o.UserID == userID })
	return int64(before - len(m.orders)), nil
}

func (m *memOrders) Revenue(_ context.Context, statuses ...order.Status) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, o := range m.orders {
		if slices.Contains(statuses, o.Status) {
			total = total.Add(o.Total)
		}
	}
	return total, nil
}

func (m *memOrders) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	for _, o := range m.orders {
		if o.UserID == userID && !slices.Contains(order.PurchaseVoidStatuses, o.Status) &&
			slices.Contains(o.ProductIDs(), productID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrders) Count(context.Context) (int64, error) { return int64(len(m.orders)), nil }

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, content string) ([]byte, error) {
	return []byte("png:" + content), nil
}
