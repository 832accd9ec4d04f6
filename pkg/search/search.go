// Package search keeps an Elasticsearch index of catalog products.
package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/olivere/elastic/v7"
	"github.com/rs/zerolog/log"
)

const mapping = `{
  "mappings": {
    "properties": {
      "title":        {"type": "text"},
      "description":  {"type": "text"},
      "price":        {"type": "scaled_float", "scaling_factor": 100},
      "count":        {"type": "integer"},
      "categoryId":   {"type": "long"},
      "freeDelivery": {"type": "boolean"}
    }
  }
}`

// ProductDoc is the indexed projection of a product.
type ProductDoc struct {
	ID           uint    `json:"-"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Count        int     `json:"count"`
	CategoryID   *uint   `json:"categoryId,omitempty"`
	FreeDelivery bool    `json:"freeDelivery"`
}

type Index struct {
	client *elastic.Client
	name   string
}

func NewIndex(url, name string) (*Index, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(url),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create elastic client: %w", err)
	}
	return &Index{client: client, name: name}, nil
}

// EnsureIndex creates the index with its mapping when missing.
func (i *Index) EnsureIndex(ctx context.Context) error {
	exists, err := i.client.IndexExists(i.name).Do(ctx)
	if err != nil {
		return fmt.Errorf("check index %s: %w", i.name, err)
	}
	if exists {
		return nil
	}
	if _, err := i.client.CreateIndex(i.name).BodyString(mapping).Do(ctx); err != nil {
		return fmt.Errorf("create index %s: %w", i.name, err)
	}
	log.Info().Str("index", i.name).Msg("search index created")
	return nil
}

// Index upserts docs in one bulk request.
func (i *Index) Index(ctx context.Context, docs ...ProductDoc) error {
	if len(docs) == 0 {
		return nil
	}
	bulk := i.client.Bulk().Index(i.name)
	for _, d := range docs {
		bulk.Add(elastic.NewBulkIndexRequest().Id(strconv.FormatUint(uint64(d.ID), 10)).Doc(d))
	}
	res, err := bulk.Do(ctx)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	if res.Errors {
		failed := res.Failed()
		return fmt.Errorf("bulk index: %d of %d documents failed", len(failed), len(docs))
	}
	return nil
}

// Search returns product ids ranked by relevance of q against title and
// description.
func (i *Index) Search(ctx context.Context, q string, limit int) ([]uint, error) {
	res, err := i.client.Search(i.name).
		Query(elastic.NewMultiMatchQuery(q, "title^3", "description").Fuzziness("AUTO")).
		Size(limit).
		FetchSource(false).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}

	ids := make([]uint, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		id, err := strconv.ParseUint(hit.Id, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
