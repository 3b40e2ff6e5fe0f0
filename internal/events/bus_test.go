package events

import "testing"

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(4, EventStep, EventTrade)
	defer unsub()

	bus.Publish(EventStep, "a")
	bus.Publish(EventSession, "ignored")
	bus.Publish(EventTrade, "b")

	first := <-ch
	if first.Event != EventStep || first.Payload != "a" {
		t.Errorf("Expected step/a, got %v/%v", first.Event, first.Payload)
	}
	second := <-ch
	if second.Event != EventTrade || second.Payload != "b" {
		t.Errorf("Expected trade/b, got %v/%v", second.Event, second.Payload)
	}
	select {
	case m := <-ch:
		t.Errorf("Expected no more messages, got %v", m)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventStep)
	defer unsub()

	bus.Publish(EventStep, 1)
	bus.Publish(EventStep, 2)

	if m := <-ch; m.Payload != 1 {
		t.Errorf("Expected first payload to be kept, got %v", m.Payload)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventStep, EventTrade)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}
	bus.Publish(EventStep, "after")
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(EventStep, "noop")
}
