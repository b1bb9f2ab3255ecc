package natsx

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CloudEventsSpecVersion is the envelope version written on every message.
const CloudEventsSpecVersion = "1.0"

// CloudEvent is the minimal CloudEvents envelope carried on NATS. TenantID
// is a CloudEvents extension attribute.
type CloudEvent struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Type        string          `json:"type"`
	Time        string          `json:"time"`
	Subject     string          `json:"subject,omitempty"`
	TenantID    string          `json:"tenantid,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// NewCloudEvent fills the envelope identity fields around data.
func NewCloudEvent(source, typ, tenantID string, data any) (CloudEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return CloudEvent{}, err
	}
	return CloudEvent{
		SpecVersion: CloudEventsSpecVersion,
		ID:          uuid.Must(uuid.NewV7()).String(),
		Source:      source,
		Type:        typ,
		Time:        time.Now().UTC().Format(time.RFC3339Nano),
		TenantID:    tenantID,
		Data:        raw,
	}, nil
}
