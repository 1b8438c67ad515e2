package events

import (
	"errors"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventAppointmentBooked, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventAppointmentBooked, AppointmentEventPayload{AppointmentID: "a-1", Date: "2030-03-04"})
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventAppointmentBooked {
		t.Errorf("expected type %s, got %s", EventAppointmentBooked, received.Type)
	}
	if received.ID == 0 {
		t.Errorf("expected event id to be assigned")
	}

	var decoded AppointmentEventPayload
	if err := received.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.AppointmentID != "a-1" || decoded.Date != "2030-03-04" {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe(EventDayBlocked, func(_ *Event) error { count1++; return nil })
	bus.Subscribe(EventDayBlocked, func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: EventDayBlocked})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusHandlerErrorsReachHook(t *testing.T) {
	bus := NewEventBus()
	var hooked error
	var laterCalled bool

	bus.OnError(func(_ *Event, err error) { hooked = err })
	bus.Subscribe(EventAppointmentCancelled, func(_ *Event) error { return errors.New("channel down") })
	bus.Subscribe(EventAppointmentCancelled, func(_ *Event) error { laterCalled = true; return nil })

	bus.Publish(&Event{Type: EventAppointmentCancelled})

	if hooked == nil || hooked.Error() != "channel down" {
		t.Errorf("expected handler error in hook, got %v", hooked)
	}
	if !laterCalled {
		t.Errorf("a failing handler must not stop the others")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(&Event{Type: "unknown"})
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON(EventAppointmentBooked, nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}
