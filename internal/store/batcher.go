package store

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/lib/pq"

	"go-polyglot-persistence/internal/metrics"
)

// CacheToucher is the entity cache's write contract, satisfied by
// internal/cache.Client. Kept as a small interface here (rather than
// importing internal/cache directly) so store has no dependency on the
// cache's Redis client.
type CacheToucher interface {
	Touch(ctx context.Context, e Entity) error
}

// SearchIndexer is the search projection's write contract, satisfied by
// internal/search.Client. A first-seen-only index: the batcher calls this
// only for rows its upsert reports as freshly inserted.
type SearchIndexer interface {
	IndexEntity(ctx context.Context, e Entity) error
}

// Batcher drains Payloads from the pipeline's bounded channel, folds them
// by identity, and emits one multi-row upsert per flush.
type Batcher struct {
	store        *Store
	maxBatchSize int

	cache  CacheToucher  // nil disables the cache fast-path
	search SearchIndexer // nil disables the search projection
}

// NewBatcher constructs a Batcher. cache and search may be nil — both
// hooks are best-effort enrichments, never required for correctness.
func NewBatcher(s *Store, maxBatchSize int, cache CacheToucher, search SearchIndexer) *Batcher {
	return &Batcher{store: s, maxBatchSize: maxBatchSize, cache: cache, search: search}
}

// Run drains deliveries forever until the channel is closed, folding each
// batch by identity and flushing one upsert per batch. It returns nil when
// the upstream channel closes (not an error — that is the normal shutdown
// signal from the Payload Consumer), and also when ctx is cancelled, in
// which case payloads still queued in the channel are not flushed.
func (b *Batcher) Run(ctx context.Context, payloads <-chan Payload) error {
	buf := make([]Payload, 0, b.maxBatchSize)

	for {
		batch, ok := recvMany(ctx, payloads, buf[:0], b.maxBatchSize)
		if !ok {
			slog.Info("channel closed", "component", "db_batcher")
			return nil
		}
		if len(batch) == 0 {
			continue
		}

		counts := fold(batch)
		metrics.BatchSize.Observe(float64(len(counts)))
		slog.Info("processing items", "component", "db_batcher", "len", len(batch), "distinct", len(counts))

		entities, err := b.upsert(ctx, counts)
		if err != nil {
			return err
		}
		b.enrich(ctx, entities)
	}
}

// recvMany blocks for the first Payload, then drains whatever else is
// already queued (without waiting further) up to max total — it does not
// spin, and does not wake per message, matching the batcher's "wait for
// either the first message or for the buffer to fill" contract. Returns
// ok=false when the channel is closed and empty, or when ctx is cancelled
// while waiting for the first Payload.
func recvMany(ctx context.Context, ch <-chan Payload, dst []Payload, max int) ([]Payload, bool) {
	select {
	case <-ctx.Done():
		return dst, false
	case p, ok := <-ch:
		if !ok {
			return dst, false
		}
		dst = append(dst, p)
	}

	for len(dst) < max {
		select {
		case p, ok := <-ch:
			if !ok {
				return dst, true
			}
			dst = append(dst, p)
		default:
			return dst, true
		}
	}
	return dst, true
}

// aggregate is one identity's in-batch accumulation: how many times it was
// observed in this flush, and a representative sample of its content (the
// first one seen — matching the Raw collision rule's "whichever body
// arrived first" choice).
type aggregate struct {
	payload Payload
	count   int
}

// fold collapses a drained batch into identity → count, keeping one content
// sample per identity. Duplicates within the batch are collapsed
// in-process; only distinct identities become rows in the outgoing
// statement.
func fold(batch []Payload) map[Identity]*aggregate {
	counts := make(map[Identity]*aggregate, len(batch))
	for _, p := range batch {
		id := p.Identity()
		if a, ok := counts[id]; ok {
			a.count++
			continue
		}
		counts[id] = &aggregate{payload: p, count: 1}
	}
	return counts
}

// upsert emits the single multi-row insert/update statement and returns the
// resulting rows, including whether each was a fresh insert.
func (b *Batcher) upsert(ctx context.Context, counts map[Identity]*aggregate) ([]Entity, error) {
	n := len(counts)
	ids := make([]string, 0, n)
	vhosts := make([]string, 0, n)
	exchanges := make([]string, 0, n)
	routingKeys := make([]string, 0, n)
	payloads := make([]sql.NullString, 0, n)
	rawPayloads := make([]sql.NullString, 0, n)
	amounts := make([]int64, 0, n)

	for id, a := range counts {
		ids = append(ids, strconv.FormatUint(id.ID, 10))
		vhosts = append(vhosts, id.VHost)
		exchanges = append(exchanges, id.Exchange)
		routingKeys = append(routingKeys, id.RoutingKey)

		if a.payload.Content.JSON != nil {
			payloads = append(payloads, sql.NullString{String: string(a.payload.Content.JSON), Valid: true})
			rawPayloads = append(rawPayloads, sql.NullString{})
		} else {
			payloads = append(payloads, sql.NullString{})
			rawPayloads = append(rawPayloads, sql.NullString{String: string(a.payload.Content.Raw), Valid: true})
		}
		amounts = append(amounts, int64(a.count))
	}

	timer := time.Now()
	rows, err := b.store.db.QueryContext(ctx, upsertSQL,
		pq.Array(ids),
		pq.Array(vhosts),
		pq.Array(exchanges),
		pq.Array(routingKeys),
		pq.Array(payloads),
		pq.Array(rawPayloads),
		pq.Array(amounts),
	)
	metrics.BatchUpsertDuration.Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var idStr string
		if err := rows.Scan(&idStr, &e.VHost, &e.Exchange, &e.RoutingKey, &e.Count, &e.FreshInsert); err != nil {
			return nil, err
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, err
		}
		e.ID = id

		// RETURNING deliberately omits payload/raw_payload to keep the
		// result set light; the content this flush submitted for this
		// identity is still in hand locally. For a fresh insert it is
		// exactly what the row now holds; on conflict the content column is
		// untouched, so for an updated row it is only this flush's sample.
		if a, ok := counts[e.Identity()]; ok {
			e.Payload = a.payload.Content.JSON
			e.RawPayload = a.payload.Content.Raw
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// enrich feeds the cache and search projection from a flush's resulting
// rows. Both are best-effort: failures are logged and never fail the batch
// or retry the upsert itself, per the "best-effort, logged, never retried"
// error category.
func (b *Batcher) enrich(ctx context.Context, entities []Entity) {
	for _, e := range entities {
		if b.cache != nil {
			if err := b.cache.Touch(ctx, e); err != nil {
				slog.Error("cache touch failed", "component", "db_batcher", "error", err)
			}
		}
		if b.search != nil && e.FreshInsert {
			if err := b.search.IndexEntity(ctx, e); err != nil {
				slog.Error("search index failed", "component", "db_batcher", "error", err)
			}
		}
	}
}

const upsertSQL = `
insert into data.entity as e (
	id, vhost, exchange, routing_key, payload, raw_payload, count
)
select
	id, vhost, exchange, routing_key, payload, raw_payload, count
from (
	select
		unnest($1::numeric[])  as id,
		unnest($2::text[])     as vhost,
		unnest($3::text[])     as exchange,
		unnest($4::text[])     as routing_key,
		unnest($5::jsonb[])    as payload,
		unnest($6::text[])     as raw_payload,
		unnest($7::integer[])  as count
) as new
on conflict (id, vhost, exchange, routing_key)
	do update set count = e.count + excluded.count, last_seen_at = now()
returning id, vhost, exchange, routing_key, count, (xmax = 0) as inserted
`
