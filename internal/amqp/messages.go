package amqp

import (
	"encoding/json"
	"errors"
	"fmt"

	"finboard/internal/core"
)

// MessageVersion is bumped when ActivityMessage changes incompatibly.
const MessageVersion = 1

// ActivityMessage is the wire form of an activity event.
type ActivityMessage struct {
	Version int `json:"version"`
	core.ActivityEvent
}

func NewActivityMessage(ev core.ActivityEvent) *ActivityMessage {
	return &ActivityMessage{Version: MessageVersion, ActivityEvent: ev}
}

// ToJSON converts the message to JSON bytes
func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON decodes and sanity checks a message body.
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, errors.New("activity message has no type")
	}
	if msg.Version > MessageVersion {
		return nil, fmt.Errorf("unsupported activity message version %d", msg.Version)
	}
	return &msg, nil
}
