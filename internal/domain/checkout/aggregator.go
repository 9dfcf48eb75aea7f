package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/product"
	"github.com/makehive/marketplace/internal/domain/seller"
)

// ErrNoProducts is returned for an empty selection.
var ErrNoProducts = apperr.Validation("no products selected")

// Aggregator groups selected cart items by seller. It only reads.
type Aggregator struct {
	products product.Repository
	sellers  seller.Repository
	missing  MissingPolicy
}

// NewAggregator creates an Aggregator with the given missing-product policy.
func NewAggregator(products product.Repository, sellers seller.Repository, missing MissingPolicy) *Aggregator {
	return &Aggregator{products: products, sellers: sellers, missing: missing}
}

// BuildPaymentGroups resolves items against the catalog, groups them by
// owning seller in order of first appearance and totals each group.
//
// Every item contributes independently: repeating a product id adds another
// line rather than merging, so callers may either repeat ids or pass explicit
// quantities.
func (a *Aggregator) BuildPaymentGroups(ctx context.Context, items []Item) ([]PaymentGroup, error) {
	if len(items) == 0 {
		return nil, ErrNoProducts
	}

	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, apperr.Validation("product id required")
		}
		if it.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1 for product %s", it.ProductID)
		}
		if _, ok := seen[it.ProductID]; !ok {
			seen[it.ProductID] = struct{}{}
			ids = append(ids, it.ProductID)
		}
	}

	fetched, err := a.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lg := zctx.From(ctx)
	var (
		groups []PaymentGroup
		index  = make(map[string]int)
	)
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			if a.missing == FailOnMissing {
				return nil, apperr.NotFound("product %s not found", it.ProductID)
			}
			lg.Debug("Skipping unresolvable product", zap.String("product_id", it.ProductID))
			continue
		}

		gi, ok := index[p.SellerID]
		if !ok {
			gi = len(groups)
			index[p.SellerID] = gi
			groups = append(groups, PaymentGroup{SellerID: p.SellerID, Total: decimal.Zero})
		}
		line := LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
		}
		g := &groups[gi]
		g.Items = append(g.Items, line)
		g.Total = g.Total.Add(line.Subtotal())
	}

	if len(groups) == 0 {
		return []PaymentGroup{}, nil
	}
	if err := a.attachSellers(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (a *Aggregator) attachSellers(ctx context.Context, groups []PaymentGroup) error {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.SellerID
	}
	fetched, err := a.sellers.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get sellers")
	}
	byID := make(map[string]seller.Seller, len(fetched))
	for _, s := range fetched {
		byID[s.ID] = s
	}

	for i := range groups {
		s, ok := byID[groups[i].SellerID]
		if !ok {
			return apperr.Configuration("seller %s of selected products is not registered", groups[i].SellerID)
		}
		groups[i].SellerName = s.BusinessName
		groups[i].PayeeAddress = s.PayoutAddress
	}
	return nil
}
