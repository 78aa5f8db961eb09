// Package memory implements a bounded, dual-tier conversation store: a fast
// in-process buffer that is the source of truth for reads, asynchronously
// mirrored to a durable snapshot store. The buffer is kept within count and
// byte limits by evicting the messages least relevant to the current
// conversation context.
package memory

import "time"

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation turn. Messages are immutable once stored;
// the timestamp is assigned at insert time when the caller leaves it zero.
type Message struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// timestampFootprint is the accounting cost of the int64 timestamp field.
const timestampFootprint = 8

// EstimateSize returns the byte footprint of a message used for capacity
// accounting: the role and text bytes plus the fixed timestamp cost.
func EstimateSize(m Message) int {
	return len(m.Role) + len(m.Text) + timestampFootprint
}

// EstimateTotalSize returns the cumulative byte footprint of messages.
func EstimateTotalSize(msgs []Message) int {
	total := 0
	for i := range msgs {
		total += EstimateSize(msgs[i])
	}
	return total
}

// Snapshot is the unit of durable persistence: a full replacement of the
// stored conversation for a session, not an append log.
type Snapshot struct {
	SessionID   string    `json:"session_id"`
	Messages    []Message `json:"messages"`
	LastUpdated time.Time `json:"last_updated"`
}
