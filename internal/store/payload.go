// Package store holds the in-process Payload record, the persisted Entity
// row, and the DB Batcher that folds a stream of Payloads into batched
// Postgres upserts.
package store

import (
	"encoding/json"

	"go-polyglot-persistence/internal/hashing"
)

// Data is the parsed body of a delivery: either the original JSON bytes
// (kept verbatim so the Postgres jsonb column can take them as-is) or, when
// parsing fails, the raw bytes that arrived on the wire. Exactly one of
// JSON / Raw is set.
type Data struct {
	JSON json.RawMessage
	Raw  []byte
}

// IsRaw reports whether the body failed to parse as JSON.
func (d Data) IsRaw() bool { return d.Raw != nil }

// Identity is the 4-tuple that determines whether two Payloads describe the
// same observation: structural hash, vhost, exchange and routing key. The
// routing key is included so that identical payloads arriving on different
// bindings of the same exchange remain distinguishable.
type Identity struct {
	ID         uint64
	VHost      string
	Exchange   string
	RoutingKey string
}

// Payload is one observed delivery, reduced to exactly what the pipeline
// needs downstream of the AMQP consumer: its structural identity and its
// content (kept only so the DB Batcher can populate payload/raw_payload on
// first sight of an identity).
type Payload struct {
	Content    Data
	ID         uint64
	VHost      string
	Exchange   string
	RoutingKey string
}

// New builds a Payload from a raw delivery body. If data parses as JSON,
// Content.JSON is set and ID is the structural hash of the parsed value;
// otherwise Content.Raw is set verbatim and ID is 0. This never fails —
// every byte string produces a Payload, exactly as the original probe's
// `Payload::new` guarantees.
func New(data []byte, vhost, exchange, routingKey string) Payload {
	v, err := hashing.Decode(data)
	if err != nil {
		return Payload{
			Content:    Data{Raw: data},
			ID:         0,
			VHost:      vhost,
			Exchange:   exchange,
			RoutingKey: routingKey,
		}
	}

	return Payload{
		Content:    Data{JSON: json.RawMessage(data)},
		ID:         hashing.Hash(v),
		VHost:      vhost,
		Exchange:   exchange,
		RoutingKey: routingKey,
	}
}

// Identity returns the 4-tuple used to deduplicate and count this Payload.
func (p Payload) Identity() Identity {
	return Identity{ID: p.ID, VHost: p.VHost, Exchange: p.Exchange, RoutingKey: p.RoutingKey}
}
