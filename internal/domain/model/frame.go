package model

import "encoding/json"

// Push channel event discriminators.
const (
	EventPing             = "ping"
	EventPong             = "pong"
	EventNewIncident      = "new_incident"
	EventNewWelfareReport = "new_welfare_report"
	EventIncidentUpdated  = "incident_updated"
	EventWelfareUpdated   = "welfare_updated"
)

// Frame is the application-level envelope for inbound push messages.
// Data stays raw until the subscriber decodes it against the Type
// discriminator at the ingestion boundary.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// OutboundFrame is the client-to-server counterpart of Frame.
type OutboundFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PingData is the payload of a client keep-alive probe.
type PingData struct {
	Timestamp int64 `json:"timestamp"` // epoch millis
}
