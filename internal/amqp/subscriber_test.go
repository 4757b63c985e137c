package amqp

import (
	"testing"

	"go-polyglot-persistence/internal/amqp/management"
)

func TestFilterBindingsDropsOtherVhosts(t *testing.T) {
	bindings := []management.Binding{
		{Source: "amq.direct", VHost: "/", Destination: "robserver.messages", DestinationType: destinationQueue, RoutingKey: "rk"},
		{Source: "amq.direct", VHost: "/staging", Destination: "robserver.messages", DestinationType: destinationQueue, RoutingKey: "rk"},
	}

	out := filterBindings(bindings, "/", "robserver.messages")
	if len(out) != 1 || out[0].VHost != "/" {
		t.Fatalf("expected only the matching-vhost binding to survive, got %+v", out)
	}
}

func TestFilterBindingsDropsSelfLoopOnWorkQueue(t *testing.T) {
	bindings := []management.Binding{
		{Source: "amq.direct", VHost: "/", Destination: "robserver.messages", DestinationType: destinationQueue, RoutingKey: "rk"},
		{Source: "amq.direct", VHost: "/", Destination: "other.queue", DestinationType: destinationQueue, RoutingKey: "rk"},
	}

	out := filterBindings(bindings, "/", "robserver.messages")
	if len(out) != 1 || out[0].Destination != "other.queue" {
		t.Fatalf("expected the binding to our own work queue to be dropped, got %+v", out)
	}
}

func TestFilterBindingsKeepsNonQueueDestinations(t *testing.T) {
	// An exchange-to-exchange binding destined "robserver.messages" under a
	// non-queue destination type is not our work queue and must survive.
	bindings := []management.Binding{
		{Source: "amq.topic", VHost: "/", Destination: "robserver.messages", DestinationType: "exchange", RoutingKey: "rk"},
	}

	out := filterBindings(bindings, "/", "robserver.messages")
	if len(out) != 1 {
		t.Fatalf("expected the exchange-destination binding to survive, got %+v", out)
	}
}

func TestBinderSkipsAlreadyBoundTuples(t *testing.T) {
	b := &binder{bound: map[bindable]struct{}{
		{name: "amq.topic", routingKey: "#"}: {},
	}}

	// A nil channel would panic if bind() tried to call QueueBind; reaching
	// that call here would indicate the already-bound short-circuit failed.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("bind() attempted to re-bind an already-bound tuple: %v", r)
		}
	}()
	b.bind("topic", "amq.topic", "#")

	if len(b.bound) != 1 {
		t.Fatalf("expected the bound set to be unchanged, got %d entries", len(b.bound))
	}
}
