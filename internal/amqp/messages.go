package amqp

import (
	"encoding/json"
	"time"
)

// FamilyUpdatedMessage announces a new version of a family document.
// Consumers fetch the full document from storage; the message only carries
// enough to locate it, so a lost message costs one export cycle, not data.
type FamilyUpdatedMessage struct {
	Slug      string    `json:"slug"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFamilyUpdatedMessage creates an update message for the given document
// version.
func NewFamilyUpdatedMessage(slug string, version int64) *FamilyUpdatedMessage {
	return &FamilyUpdatedMessage{
		Slug:      slug,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *FamilyUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FamilyUpdatedMessageFromJSON creates a message from JSON bytes
func FamilyUpdatedMessageFromJSON(data []byte) (*FamilyUpdatedMessage, error) {
	var msg FamilyUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
