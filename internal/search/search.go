// Package search provides an Elasticsearch projection of observed
// entities, used only to serve the admin API's full-text /api/search
// endpoint.
//
// Why Elasticsearch over a Postgres jsonb scan?
//   - Inverted index: sub-millisecond full-text search across millions of
//     distinct payload shapes.
//   - Relevance scoring: results ranked by match quality, not insertion
//     order.
//   - Scalability: horizontally sharded, unlike a single-table jsonb GIN
//     scan.
//
// Index lifecycle:
//   - The DB Batcher calls IndexEntity once per identity, only on its
//     first-seen insert — re-observations only bump the Postgres counter
//     and never touch this index, since the payload content for a given
//     identity cannot change by construction (§3's identity rule).
//   - The admin API calls SearchEntities to serve GET /api/search.
//   - Postgres remains the source of truth; ES is a read-optimised
//     projection.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"go-polyglot-persistence/internal/store"
)

const entitiesIndex = "entities"

// Client wraps the Elasticsearch client with domain-level operations.
type Client struct {
	es *elasticsearch.Client
}

// New creates an Elasticsearch client pointed at the given URL.
func New(url string) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{url},
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return &Client{es: es}, nil
}

// document is the Elasticsearch-side projection of an Entity. payload is
// indexed as free text so both JSON object text and raw bodies are
// searchable the same way.
type document struct {
	VHost      string `json:"vhost"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
	ID         string `json:"id"`
	Payload    string `json:"payload,omitempty"`
	RawPayload string `json:"raw_payload,omitempty"`
}

func documentID(e store.Entity) string {
	return fmt.Sprintf("%s|%s|%s|%d", e.VHost, e.Exchange, e.RoutingKey, e.ID)
}

// IndexEntity upserts one entity document. Using the identity tuple as the
// document ID makes this idempotent — re-indexing the same identity will
// not create duplicates, even if a caller invoked it more than once.
func (c *Client) IndexEntity(ctx context.Context, e store.Entity) error {
	doc := document{
		VHost:      e.VHost,
		Exchange:   e.Exchange,
		RoutingKey: e.RoutingKey,
		ID:         fmt.Sprintf("%d", e.ID),
		Payload:    string(e.Payload),
		RawPayload: string(e.RawPayload),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := c.es.Index(
		entitiesIndex,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(documentID(e)),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("search: index error [%s]: %s", res.Status(), body)
	}
	return nil
}

// SearchEntities executes a full-text multi_match query against the indexed
// payload, raw_payload, exchange and routing_key fields. It returns the raw
// Elasticsearch response
// body for the admin API to proxy directly.
func (c *Client) SearchEntities(ctx context.Context, term string) (json.RawMessage, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  term,
				"fields": []string{"payload", "raw_payload", "exchange", "routing_key"},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(entitiesIndex),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: query request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search: query error [%s]: %s", res.Status(), body)
	}

	return io.ReadAll(res.Body)
}
