package event

import (
	"context"
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{Name: "test"})
	defer bus.Close()

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	bus.Publish(42)

	for _, ch := range []<-chan int{first, second} {
		select {
		case got := <-ch:
			if got != 42 {
				t.Fatalf("received %d, want 42", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber starved")
		}
	}
}

func TestBusFilteredSubscription(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{})
	defer bus.Close()

	evens, cancel := bus.SubscribeFiltered(func(value int) bool {
		return value%2 == 0
	})
	defer cancel()

	bus.Publish(1)
	bus.Publish(2)

	select {
	case got := <-evens:
		if got != 2 {
			t.Fatalf("filter let %d through", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("filtered subscriber starved")
	}
}

func TestBusSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{SubscriberBufferSize: 1})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Publish(1)
		bus.Publish(2)
		bus.Publish(3)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publisher blocked on a slow subscriber")
	}

	got := <-ch
	if got != 1 {
		t.Fatalf("first delivery = %d, want 1", got)
	}
}

func TestBusCloseUnsubscribesEveryone(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{})
	ch, _ := bus.Subscribe()

	bus.Close()

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected subscriber channel to close")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber channel never closed")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d after close", bus.SubscriberCount())
	}

	// Publishing and subscribing after close are harmless no-ops.
	bus.Publish(1)
	late, cancel := bus.Subscribe()
	cancel()
	if _, open := <-late; open {
		t.Fatalf("late subscription should come back closed")
	}
}

func TestBusHistoryKeepsRecentEvents(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{HistorySize: 2})
	defer bus.Close()

	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)

	history := bus.History()
	if len(history) != 2 || history[0] != 2 || history[1] != 3 {
		t.Fatalf("history = %v, want [2 3]", history)
	}
}

func TestBusContextCancelCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus[int](ctx, BusOptions{})
	ch, _ := bus.Subscribe()

	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected channel close on context cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("context cancel did not close the bus")
	}
}
