package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/soundcore/audiopolicyd/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time event stream for routing changes, device hotplug, mix activity and volume updates",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"routing-changed":    events.RoutingChangedEvent{},
		"port-list-changed":  events.PortListChangedEvent{},
		"patch-list-changed": events.PatchListChangedEvent{},
		"mix-state-changed":  events.MixStateChangedEvent{},
		"recording-config":   events.RecordingConfigEvent{},
		"device-connection":  events.DeviceConnectionEvent{},
		"volume-changed":     events.VolumeChangedEvent{},
		"config-changed":     events.ConfigChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.RoutingChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PortListChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PatchListChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.MixStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingConfigEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceConnectionEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.VolumeChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial event confirms the subscription is live.
		if err := send.Data(events.RoutingChangedEvent{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
