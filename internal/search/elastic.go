// Package search indexes the product catalog in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/makehive/marketplace/internal/domain/product"
)

// DefaultIndex is the index used when none is configured.
const DefaultIndex = "products"

var (
	_ product.Searcher = (*Elastic)(nil)
	_ product.Indexer  = (*Elastic)(nil)
)

// Config holds Elasticsearch connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Size caps the number of search hits.
	Size int
}

// NewClient creates an Elasticsearch client and checks connectivity.
func NewClient(ctx context.Context, cfg Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create client")
	}
	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "info")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, errors.Errorf("info: %s", res.Status())
	}
	return client, nil
}

// Elastic searches and maintains the product index.
type Elastic struct {
	es    *elasticsearch.Client
	index string
	size  int
}

// New creates an Elastic index over client.
func New(client *elasticsearch.Client, index string, size int) *Elastic {
	if index == "" {
		index = DefaultIndex
	}
	if size <= 0 {
		size = 50
	}
	return &Elastic{es: client, index: index, size: size}
}

type document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Image      string    `json:"image,omitempty"`
	SellerID   string    `json:"seller_id"`
	Rating     float64   `json:"rating"`
	NumReviews int       `json:"num_reviews"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDocument(p product.Product) document {
	return document{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.StringFixed(2),
		Image:      p.Image,
		SellerID:   p.SellerID,
		Rating:     p.Rating,
		NumReviews: p.NumReviews,
		CreatedAt:  p.CreatedAt,
	}
}

func (d document) product() (product.Product, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return product.Product{}, errors.Wrapf(err, "parse price of %s", d.ID)
	}
	return product.Product{
		ID:         d.ID,
		Name:       d.Name,
		Price:      price,
		Image:      d.Image,
		SellerID:   d.SellerID,
		Rating:     d.Rating,
		NumReviews: d.NumReviews,
		CreatedAt:  d.CreatedAt,
	}, nil
}

// Search runs a fuzzy name match.
func (e *Elastic) Search(ctx context.Context, query string) ([]product.Product, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^2"},
				"fuzziness": "AUTO",
			},
		},
		"size": e.size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, errors.Wrap(err, "encode query")
	}

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(e.index),
		e.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, responseError("search", res.StatusCode, res.Body)
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	out := make([]product.Product, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		p, err := hit.Source.product()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Index upserts p into the index.
func (e *Elastic) Index(ctx context.Context, p product.Product) error {
	data, err := json.Marshal(toDocument(p))
	if err != nil {
		return errors.Wrap(err, "encode document")
	}
	res, err := e.es.Index(e.index, bytes.NewReader(data),
		e.es.Index.WithContext(ctx),
		e.es.Index.WithDocumentID(p.ID),
	)
	if err != nil {
		return errors.Wrap(err, "index")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return responseError("index", res.StatusCode, res.Body)
	}
	return nil
}

// Remove deletes the document for id. Missing documents are ignored.
func (e *Elastic) Remove(ctx context.Context, id string) error {
	res, err := e.es.Delete(e.index, id, e.es.Delete.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return responseError("delete", res.StatusCode, res.Body)
	}
	return nil
}

// Ping reports whether the cluster is reachable.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.es.Ping(e.es.Ping.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "ping")
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return errors.Errorf("ping: status %d", res.StatusCode)
	}
	return nil
}

func responseError(op string, status int, body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 512))
	return errors.Errorf("%s: status %d: %s", op, status, bytes.TrimSpace(msg))
}
