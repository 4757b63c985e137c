package store

import (
	"encoding/json"
	"time"
)

// Entity is one persisted row of data.entity: the durable, counted record
// of a single (id, vhost, exchange, routing_key) identity. Entities are
// created on first observation and updated — never deleted — on every
// subsequent one.
type Entity struct {
	ID          uint64
	VHost       string
	Exchange    string
	RoutingKey  string
	Payload     json.RawMessage
	RawPayload  []byte
	Count       int64
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	FreshInsert bool // true iff this flush created the row rather than bumping it
}

// Identity returns the 4-tuple that uniquely identifies this row.
func (e Entity) Identity() Identity {
	return Identity{ID: e.ID, VHost: e.VHost, Exchange: e.Exchange, RoutingKey: e.RoutingKey}
}
