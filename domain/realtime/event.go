// Package realtime provides the change event and subscriber value types for
// the realtime broadcast subsystem.
package realtime

import (
	"encoding/json"
	"fmt"
)

// Operation is a row mutation kind as reported by the change trigger.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ChangeEvent is one decoded change notification. It is ephemeral: never
// persisted, carrying only the table, operation and the row's primary key.
// Row contents deliberately never travel in the payload.
type ChangeEvent struct {
	Table     string    `json:"table"`
	Operation Operation `json:"op"`
	PK        string    `json:"pk"`
}

// Channel returns the subscription channel this event belongs to.
func (e ChangeEvent) Channel() string {
	return ChannelForTable(e.Table)
}

// ChannelForTable returns the channel name for a table.
func ChannelForTable(table string) string {
	return "table:" + table
}

// TableForChannel extracts the table name from a channel name. ok is false
// when the channel is not a table channel.
func TableForChannel(channel string) (string, bool) {
	const prefix = "table:"
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return "", false
	}
	return channel[len(prefix):], true
}

// Identity is a subscriber's decoded claim set: who they are and what role
// they carry. Decoded from the access token at subscribe time; evaluated
// against row-level security on every event.
type Identity struct {
	Subject string
	Role    string
}

// DecodeEvent parses a notification payload produced by the change trigger.
// Malformed payloads are a decode error, never a panic; the listener logs
// and drops them.
func DecodeEvent(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change payload: %w", err)
	}
	if ev.Table == "" || ev.PK == "" {
		return ChangeEvent{}, fmt.Errorf("decode change payload: missing table or pk")
	}
	switch ev.Operation {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("decode change payload: unknown operation %q", ev.Operation)
	}
	return ev, nil
}

// Envelope is the message pushed to an authorized subscriber.
type Envelope struct {
	Table     string    `json:"table"`
	Operation Operation `json:"operation"`
	PK        string    `json:"pk"`
	EventID   string    `json:"event_id"`
}
