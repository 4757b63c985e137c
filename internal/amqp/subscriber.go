package amqp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"go-polyglot-persistence/internal/amqp/management"
	"go-polyglot-persistence/internal/config"
	"go-polyglot-persistence/internal/metrics"
)

const (
	routingKeyWildcard = "#"
	internalPrefix     = "amq."
	destinationQueue   = "queue"
	reconcileInterval  = 5 * time.Second
)

// bindable is the (exchange, routing key) pair the subscriber wants bound
// to the work queue.
type bindable struct {
	name       string
	routingKey string
}

// binder owns the subscriber's own channel on the shared connection and the
// local already-bound set. A bind is skipped when the tuple is already
// known; a successful broker bind adds it; a failed one does not, and
// instead discards and reopens the channel so the next tick can retry.
type binder struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
	bound   map[bindable]struct{}
}

func newBinder(conn *amqp091.Connection, queue string) (*binder, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &binder{conn: conn, channel: ch, queue: queue, bound: make(map[bindable]struct{})}, nil
}

func (b *binder) bind(exchangeType, name, routingKey string) {
	key := bindable{name: name, routingKey: routingKey}
	if _, ok := b.bound[key]; ok {
		slog.Debug("already bound", "component", "exchange_subscriber", "exchange", name, "routing_key", routingKey)
		return
	}

	err := b.channel.QueueBind(b.queue, routingKey, name, false, nil)
	if err != nil {
		slog.Warn("bind failed, recovering channel", "component", "exchange_subscriber", "exchange", name, "routing_key", routingKey, "error", err)
		if fresh, ferr := b.conn.Channel(); ferr == nil {
			b.channel = fresh
		} else {
			slog.Error("failed to reopen channel after bind failure", "component", "exchange_subscriber", "error", ferr)
		}
		return
	}

	slog.Info("bound", "component", "exchange_subscriber", "exchange", name, "routing_key", routingKey)
	metrics.BindsTotal.WithLabelValues(exchangeType).Inc()
	b.bound[key] = struct{}{}
}

// Subscriber maintains the set of bindings from the work queue to every
// relevant exchange: a static seed list at startup, then a 5-second
// reconcile loop driven by the broker's own topology.
type Subscriber struct {
	conn  *amqp091.Connection
	cfg   config.AMQP
	vhost string
	mgmt  *management.Client
}

// NewSubscriber constructs a Subscriber. It opens its own channel on conn,
// distinct from the Payload Consumer's.
func NewSubscriber(conn *amqp091.Connection, cfg config.AMQP, vhost string) *Subscriber {
	return &Subscriber{conn: conn, cfg: cfg, vhost: vhost, mgmt: management.New(cfg.APIURL)}
}

// Run seeds the static bindings, then reconciles against the broker's live
// topology every 5 seconds until ctx is cancelled. HTTP/JSON errors are
// logged and the tick is skipped — the loop itself never exits on them.
func (s *Subscriber) Run(ctx context.Context) error {
	b, err := newBinder(s.conn, s.cfg.QueueName)
	if err != nil {
		return err
	}

	s.seed(b)

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.reconcile(ctx, b)
		}
	}
}

// seed binds every configured static exchange with the topic wildcard,
// once, at startup.
func (s *Subscriber) seed(b *binder) {
	if len(s.cfg.Exchanges) == 0 {
		slog.Info("no exchanges to bind to", "component", "exchange_subscriber")
		return
	}
	for _, ex := range s.cfg.Exchanges {
		b.bind("seed", ex, routingKeyWildcard)
	}
}

// reconcile fetches the broker's exchange and binding topology and binds
// the work queue to every exchange it should see traffic from: exact
// routing keys for direct exchanges, the wildcard once for everything else.
func (s *Subscriber) reconcile(ctx context.Context, b *binder) {
	exchanges, err := s.mgmt.Exchanges(ctx)
	if err != nil {
		slog.Error("failed to fetch exchanges", "component", "exchange_subscriber", "error", err)
		metrics.ReconcileErrorsTotal.Inc()
		return
	}
	bindings, err := s.mgmt.Bindings(ctx)
	if err != nil {
		slog.Error("failed to fetch bindings", "component", "exchange_subscriber", "error", err)
		metrics.ReconcileErrorsTotal.Inc()
		return
	}

	bindings = filterBindings(bindings, s.vhost, s.cfg.QueueName)

	for _, ex := range exchanges {
		if ex.VHost != s.vhost || ex.Name == "" || strings.HasPrefix(ex.Name, internalPrefix) {
			continue
		}

		if ex.Type == management.Direct {
			found := 0
			for _, bd := range bindings {
				if bd.Source == ex.Name {
					b.bind(string(ex.Type), ex.Name, bd.RoutingKey)
					found++
				}
			}
			if found == 0 {
				slog.Debug("no bindings found", "component", "exchange_subscriber", "exchange", ex.Name)
			} else {
				slog.Debug("bindings found", "component", "exchange_subscriber", "exchange", ex.Name, "count", found)
			}
			continue
		}

		b.bind(string(ex.Type), ex.Name, routingKeyWildcard)
	}
}

// filterBindings drops bindings outside the configured vhost and bindings
// that point at our own work queue — binding the queue to itself would
// create a self-reinforcing loop.
func filterBindings(bindings []management.Binding, vhost, workQueue string) []management.Binding {
	out := bindings[:0]
	for _, bd := range bindings {
		if bd.VHost != vhost {
			continue
		}
		if bd.DestinationType == destinationQueue && bd.Destination == workQueue {
			continue
		}
		out = append(out, bd)
	}
	return out
}
