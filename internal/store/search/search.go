// Package search indexes applications and catalog products in
// Elasticsearch and runs the admin and storefront text searches.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"vanu-marketplace/internal/common/errors"
	"vanu-marketplace/internal/common/logger"
	"vanu-marketplace/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	IndexApplications = "applications"
	IndexProducts     = "products"
)

const applicationsMapping = `{
  "mappings": {
    "properties": {
      "collection":    {"type": "keyword"},
      "status":        {"type": "keyword"},
      "userId":        {"type": "keyword"},
      "applicantName": {"type": "text"},
      "name":          {"type": "text"},
      "email":         {"type": "keyword"},
      "mobileNo":      {"type": "keyword"},
      "mobile":        {"type": "keyword"},
      "district":      {"type": "text"},
      "blockName":     {"type": "text"},
      "submittedAt":   {"type": "date"}
    }
  }
}`

const productsMapping = `{
  "mappings": {
    "properties": {
      "name":        {"type": "text"},
      "description": {"type": "text"},
      "category":    {"type": "keyword"},
      "status":      {"type": "keyword"},
      "featured":    {"type": "boolean"},
      "price":       {"type": "double"}
    }
  }
}`

// IndexCreator creates missing indices.
type IndexCreator interface {
	EnsureIndex(ctx context.Context, index, mapping string) error
}

type Index struct {
	client *elasticsearch.Client
	logger logger.Logger
}

func New(client *elasticsearch.Client, log logger.Logger) *Index {
	return &Index{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "search-index"}),
	}
}

// EnsureIndices creates the application and product indices.
func EnsureIndices(ctx context.Context, creator IndexCreator) error {
	if err := creator.EnsureIndex(ctx, IndexApplications, applicationsMapping); err != nil {
		return err
	}
	return creator.EnsureIndex(ctx, IndexProducts, productsMapping)
}

// IndexApplication (re)indexes one application under collection/id.
func (x *Index) IndexApplication(ctx context.Context, collection, id string, app models.Application) error {
	doc := make(map[string]interface{}, len(app)+1)
	for k, v := range app {
		if k == models.FieldPassword {
			continue
		}
		doc[k] = v
	}
	doc["collection"] = collection
	return x.index(ctx, IndexApplications, collection+":"+id, doc)
}

// IndexProduct (re)indexes one catalog product.
func (x *Index) IndexProduct(ctx context.Context, p models.Product) error {
	return x.index(ctx, IndexProducts, p.ID, p)
}

func (x *Index) index(ctx context.Context, index, id string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.NewSearchQueryFailedError(index, fmt.Errorf("encode document: %w", err))
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return errors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchQueryFailedError(index, fmt.Errorf("index %s: %s", id, res.Status()))
	}
	return nil
}

// Hit is one search result.
type Hit struct {
	ID     string                 `json:"id"`
	Score  float64                `json:"score"`
	Source map[string]interface{} `json:"source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string                 `json:"_id"`
			Score  float64                `json:"_score"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchApplications matches term against applicant fields within collection.
func (x *Index) SearchApplications(ctx context.Context, collection, term string, size int) ([]Hit, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":     term,
							"fields":    []string{"applicantName^2", "name^2", "email", "mobileNo", "mobile", "district", "blockName"},
							"fuzziness": "AUTO",
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"collection": collection}},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"submittedAt": map[string]string{"order": "desc", "unmapped_type": "date"}}},
	}
	return x.search(ctx, IndexApplications, query, size)
}

// SearchProducts matches term against active products.
func (x *Index) SearchProducts(ctx context.Context, term string, size int) ([]Hit, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":     term,
							"fields":    []string{"name^3", "description", "category"},
							"fuzziness": "AUTO",
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"status": models.ProductStatusActive}},
				},
			},
		},
	}
	return x.search(ctx, IndexProducts, query, size)
}

func (x *Index) search(ctx context.Context, index string, query map[string]interface{}, size int) ([]Hit, error) {
	if size <= 0 {
		size = 20
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(index, err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, errors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, errors.NewSearchQueryFailedError(index, fmt.Errorf("%s: %s", res.Status(), msg))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError(index, fmt.Errorf("decode response: %w", err))
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score, Source: h.Source})
	}
	x.logger.Debug("search executed", map[string]interface{}{
		"index": index,
		"total": parsed.Hits.Total.Value,
	})
	return hits, nil
}
