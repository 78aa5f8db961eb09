package memory

import "sync"

// Buffer is the ordered in-process message sequence for one session. It is
// the source of truth for reads; durable persistence lags behind it. All
// methods are safe for concurrent use and none of them block.
type Buffer struct {
	mu    sync.RWMutex
	msgs  []Message
	bytes int // cumulative EstimateSize of msgs
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a message to the end of the buffer.
func (b *Buffer) Append(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	b.bytes += EstimateSize(msg)
}

// All returns a copy of the full ordered message sequence.
func (b *Buffer) All() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.msgs) == 0 {
		return nil
	}
	out := make([]Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// Replace atomically swaps the buffer contents. Used on session load and
// after a pruning pass.
func (b *Buffer) Replace(msgs []Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(msgs) == 0 {
		b.msgs = nil
		b.bytes = 0
		return
	}
	b.msgs = make([]Message, len(msgs))
	copy(b.msgs, msgs)
	b.bytes = EstimateTotalSize(msgs)
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.msgs)
}

// Size returns the cumulative estimated byte footprint of the buffer.
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bytes
}
