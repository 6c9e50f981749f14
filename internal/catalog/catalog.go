// Package catalog exposes the storefront: featured products, product
// search and the home page slideshow.
package catalog

import (
	"context"
	"encoding/json"
	"strings"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"
	"vanu-marketplace/internal/store/documents"
	"vanu-marketplace/internal/store/search"
)

const (
	featuredLimit = 8
	searchSize    = 24
)

type Store interface {
	Query(ctx context.Context, q documents.Query) ([]documents.Document, error)
}

type ProductIndex interface {
	IndexProduct(ctx context.Context, p models.Product) error
	SearchProducts(ctx context.Context, term string, size int) ([]search.Hit, error)
}

type Catalog struct {
	store  Store
	index  ProductIndex
	logger logger.Logger
}

func New(store Store, index ProductIndex, log logger.Logger) *Catalog {
	return &Catalog{
		store:  store,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "catalog"}),
	}
}

func activeProducts() []documents.Filter {
	return []documents.Filter{{Field: "status", Op: documents.OpEqual, Value: models.ProductStatusActive}}
}

func (c *Catalog) FeaturedProducts(ctx context.Context) ([]models.Product, error) {
	return c.products(ctx, documents.Query{
		Collection: models.CollectionProducts,
		Where: append(activeProducts(),
			documents.Filter{Field: "featured", Op: documents.OpEqual, Value: true}),
		Limit: featuredLimit,
	})
}

// SearchProducts matches term against active products. An empty term
// returns every active product.
func (c *Catalog) SearchProducts(ctx context.Context, term string) ([]models.Product, error) {
	term = strings.TrimSpace(term)
	if term == "" || c.index == nil {
		return c.products(ctx, documents.Query{
			Collection: models.CollectionProducts,
			Where:      activeProducts(),
			OrderBy:    "name",
		})
	}

	hits, err := c.index.SearchProducts(ctx, term, searchSize)
	if err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(hits))
	for _, h := range hits {
		var p models.Product
		if err := decodeHit(h, &p); err != nil {
			c.logger.Warn("skipping undecodable product hit", map[string]interface{}{"id": h.ID, "error": err})
			continue
		}
		p.ID = h.ID
		out = append(out, p)
	}
	return out, nil
}

func (c *Catalog) Slides(ctx context.Context) ([]models.Slide, error) {
	docs, err := c.store.Query(ctx, documents.Query{
		Collection:  models.CollectionSlides,
		OrderBy:     "createdAt",
		OrderByTime: true,
		Desc:        true,
	})
	if err != nil {
		return nil, err
	}
	slides, err := documents.DecodeAll(docs, func(s *models.Slide, id string) { s.ID = id })
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("decode slides", err)
	}
	return slides, nil
}

// ReindexProducts pushes every stored product into the search index and
// returns how many were indexed.
func (c *Catalog) ReindexProducts(ctx context.Context) (int, error) {
	if c.index == nil {
		return 0, errors.NewInvalidStateError("search is not configured")
	}
	all, err := c.products(ctx, documents.Query{Collection: models.CollectionProducts})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range all {
		if err := c.index.IndexProduct(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	c.logger.Info("products reindexed", map[string]interface{}{"count": n})
	return n, nil
}

func (c *Catalog) products(ctx context.Context, q documents.Query) ([]models.Product, error) {
	docs, err := c.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	products, err := documents.DecodeAll(docs, func(p *models.Product, id string) { p.ID = id })
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("decode products", err)
	}
	return products, nil
}

func decodeHit(h search.Hit, out interface{}) error {
	raw, err := json.Marshal(h.Source)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
