// Package amqp implements the broker-facing half of the probe: the broker
// session (connection + queue bootstrap), the payload consumer, and the
// exchange subscriber. It is named after the protocol it speaks, not the
// driver — the driver is github.com/rabbitmq/amqp091-go, imported here as
// amqp091.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"go-polyglot-persistence/internal/config"
	"go-polyglot-persistence/internal/store"
)

// vhost is currently hard-coded to "/" — spec.md explicitly scopes this
// probe to a single configured vhost.
const vhost = "/"

// consumerTag identifies this process's consumer to the broker; fixed, not
// configurable, matching the original probe's robserver.ct.
const consumerTag = "robserver.ct"

// Session owns the single AMQP connection this process uses, declares the
// transient work queue, and runs the Payload Consumer and Exchange
// Subscriber as its two children.
type Session struct {
	cfg     config.AMQP
	conn    *amqp091.Connection
	payload chan<- store.Payload
}

// NewSession dials the broker with a 5-second connect timeout. Exceeding
// the timeout, or any other dial failure, is fatal — the caller should
// treat a non-nil error as cause to exit the process.
func NewSession(ctx context.Context, cfg config.AMQP, payloads chan<- store.Payload) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeoutS)*time.Second)
	defer cancel()

	connCh := make(chan *amqp091.Connection, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := amqp091.Dial(cfg.URL)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	}()

	select {
	case <-dialCtx.Done():
		return nil, fmt.Errorf("amqp: connect timed out after %ds", cfg.ConnectTimeoutS)
	case err := <-errCh:
		return nil, fmt.Errorf("amqp: connect: %w", err)
	case conn := <-connCh:
		slog.Info("connected", "component", "broker_session")
		return &Session{cfg: cfg, conn: conn, payload: payloads}, nil
	}
}

// Close tears down the underlying connection; the auto-delete work queue
// disappears with it.
func (s *Session) Close() error { return s.conn.Close() }

// Run declares the work queue, then spawns and awaits the Payload Consumer
// and the Exchange Subscriber. It returns only when both children exit —
// in normal operation that happens only on ctx cancellation or a fatal
// error in either child.
func (s *Session) Run(ctx context.Context) error {
	ch, err := s.declareQueue(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return NewConsumer(ch, s.cfg, s.payload).Run(ctx)
	})
	g.Go(func() error {
		return NewSubscriber(s.conn, s.cfg, vhost).Run(ctx)
	})
	return g.Wait()
}

// declareQueue declares the non-durable, auto-delete, bounded work queue.
// If declaration fails with AMQP 406 (precondition failed — a queue of that
// name already exists with incompatible parameters), the queue is treated
// as usable as-is: the failed channel is discarded and a fresh one opened
// on the same connection. Any other error is fatal.
func (s *Session) declareQueue(ctx context.Context) (*amqp091.Channel, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	args := amqp091.Table{"x-max-length": s.cfg.QueueMaxLength}
	_, err = ch.QueueDeclare(s.cfg.QueueName, false, true, false, false, args)
	if err == nil {
		slog.Info("declared queue", "component", "broker_session", "queue", s.cfg.QueueName)
		return ch, nil
	}

	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp091.PreconditionFailed {
		slog.Info("queue already declared", "component", "broker_session", "queue", s.cfg.QueueName)
		fresh, ferr := s.conn.Channel()
		if ferr != nil {
			return nil, fmt.Errorf("amqp: reopen channel after precondition failed: %w", ferr)
		}
		return fresh, nil
	}

	return nil, fmt.Errorf("amqp: declare queue: %w", err)
}
