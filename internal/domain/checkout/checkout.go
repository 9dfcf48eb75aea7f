// Package checkout splits a multi-seller cart selection into one payment
// request per seller.
package checkout

import (
	"github.com/shopspring/decimal"
)

// Item is a selected cart entry: a product and how many units of it.
type Item struct {
	ProductID string
	Quantity  int
}

// LineItem is a resolved product within a seller's payment group.
type LineItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal returns Price × Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PaymentGroup is everything a buyer owes a single seller. It is derived
// fresh on every request and never persisted.
type PaymentGroup struct {
	SellerID     string
	SellerName   string
	PayeeAddress string
	Items        []LineItem
	Total        decimal.Decimal
}

// MissingPolicy decides what happens to selected products that no longer
// exist in the catalog.
type MissingPolicy int

const (
	// SkipMissing drops unresolvable products so checkout of the remaining
	// items can proceed.
	SkipMissing MissingPolicy = iota
	// FailOnMissing rejects the whole request with a not-found error.
	FailOnMissing
)
