package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceConnectionEvent, 1)

	unsub := bus.Subscribe(func(e DeviceConnectionEvent) {
		received <- e
	})
	defer unsub()

	event := DeviceConnectionEvent{
		Device:    "AUDIO_DEVICE_OUT_WIRED_HEADSET",
		Address:   "card=1;device=0",
		Connected: true,
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.Device != event.Device {
		t.Errorf("Expected device %s, got %s", event.Device, got.Device)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan PortListChangedEvent, 1)
	received2 := make(chan PortListChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e PortListChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e PortListChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	event := PortListChangedEvent{Generation: 3}
	bus.Publish(event)

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan MixStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e MixStateChangedEvent) {
		received <- e
	})

	bus.Publish(MixStateChangedEvent{Registration: "addr=remote_submix_0", State: MixStateMixing})
	<-received

	unsub()

	bus.Publish(MixStateChangedEvent{Registration: "addr=remote_submix_1", State: MixStateIdle})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	routingReceived := make(chan bool, 1)
	volumeReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ RoutingChangedEvent) {
		routingReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ VolumeChangedEvent) {
		volumeReceived <- true
	})
	defer unsub2()

	// Publish RoutingChangedEvent
	bus.Publish(RoutingChangedEvent{})
	<-routingReceived

	select {
	case <-volumeReceived:
		t.Fatal("Volume subscriber should NOT have received RoutingChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	// Publish VolumeChangedEvent
	bus.Publish(VolumeChangedEvent{Group: "media", Index: 7})
	<-volumeReceived

	select {
	case <-routingReceived:
		t.Fatal("Routing subscriber should NOT have received VolumeChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DeviceConnectionEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DeviceConnectionEvent{
					Device:    "AUDIO_DEVICE_OUT_USB_HEADSET",
					Connected: true,
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	// Read all expected events
	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"RoutingChanged", RoutingChangedEvent{}},
		{"PortListChanged", PortListChangedEvent{Generation: 1}},
		{"PatchListChanged", PatchListChangedEvent{}},
		{"MixStateChanged", MixStateChangedEvent{Registration: "addr=a", State: MixStateMixing}},
		{"RecordingConfig", RecordingConfigEvent{RIID: 2, Active: true}},
		{"DeviceConnection", DeviceConnectionEvent{Device: "AUDIO_DEVICE_OUT_SPEAKER"}},
		{"VolumeChanged", VolumeChangedEvent{Group: "media", Index: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case RoutingChangedEvent:
				unsub = bus.Subscribe(func(e RoutingChangedEvent) { received <- e })
			case PortListChangedEvent:
				unsub = bus.Subscribe(func(e PortListChangedEvent) { received <- e })
			case PatchListChangedEvent:
				unsub = bus.Subscribe(func(e PatchListChangedEvent) { received <- e })
			case MixStateChangedEvent:
				unsub = bus.Subscribe(func(e MixStateChangedEvent) { received <- e })
			case RecordingConfigEvent:
				unsub = bus.Subscribe(func(e RecordingConfigEvent) { received <- e })
			case DeviceConnectionEvent:
				unsub = bus.Subscribe(func(e DeviceConnectionEvent) { received <- e })
			case VolumeChangedEvent:
				unsub = bus.Subscribe(func(e VolumeChangedEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
	}{
		{
			"DeviceConnectionEvent",
			DeviceConnectionEvent{
				Device:    "AUDIO_DEVICE_OUT_WIRED_HEADSET",
				Address:   "card=1;device=0",
				Connected: true,
				Timestamp: "2025-01-27T10:30:00Z",
			},
		},
		{
			"MixStateChangedEvent",
			MixStateChangedEvent{
				Registration: "addr=remote_submix_0",
				State:        MixStateMixing,
				Timestamp:    "2025-01-27T10:30:00Z",
			},
		},
		{
			"VolumeChangedEvent",
			VolumeChangedEvent{
				Group:     "media",
				Device:    "AUDIO_DEVICE_OUT_SPEAKER",
				Index:     7,
				Timestamp: "2025-01-27T10:30:00Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if len(result) == 0 {
				t.Fatal("Unmarshaled to empty object")
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[RecordingConfigEvent](bus, ch)
	defer unsub()

	event := RecordingConfigEvent{
		RIID:   5,
		Source: "AUDIO_SOURCE_MIC",
		Active: true,
	}
	bus.Publish(event)

	received := <-ch
	recEvent, ok := received.(RecordingConfigEvent)
	if !ok {
		t.Fatalf("Expected RecordingConfigEvent, got %T", received)
	}
	if recEvent.RIID != event.RIID {
		t.Errorf("Expected riid %d, got %d", event.RIID, recEvent.RIID)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[PatchListChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(PatchListChangedEvent{})
		done <- true
	}()

	<-done // Should complete without blocking
}
