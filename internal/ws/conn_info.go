package ws

import "time"

// ConnInfo describes who is behind a live connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) lifecycleEvent(event, reason string) lifecycleEnvelope {
	return lifecycleEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     i.ConnID,
				"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   i.UserID,
				"device_id": i.DeviceID,
				"ip":        i.IP,
			},
			"request_id": i.RequestID,
			"trace_id":   i.TraceID,
		},
	}
}

type lifecycleEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}
