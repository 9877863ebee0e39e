package services

import (
	"context"
	"fmt"
	"time"
)

// DedupWindow is the trailing span within which identical inbound content from
// the same conversation is treated as a repeat delivery.
const DedupWindow = 60 * time.Second

// DedupStore is the slice of the store the deduplicator needs.
type DedupStore interface {
	HasRecentContactMessage(ctx context.Context, conversationID, content string, since time.Time) (bool, error)
}

// MessageDeduplicator screens inbound messages against the trailing window.
// The gateway delivers at-least-once, so redundant deliveries of the same
// logical event are expected. Content-based, best effort: two distinct
// legitimate messages with identical text inside the window collapse too.
type MessageDeduplicator struct {
	store  DedupStore
	window time.Duration
	now    func() time.Time
}

// NewMessageDeduplicator creates a MessageDeduplicator with the default
// window.
func NewMessageDeduplicator(st DedupStore) (*MessageDeduplicator, error) {
	if st == nil {
		return nil, fmt.Errorf("dedup store cannot be nil")
	}
	return &MessageDeduplicator{store: st, window: DedupWindow, now: time.Now}, nil
}

// IsDuplicate reports whether a contact message with this content was already
// persisted for the conversation inside the window.
func (d *MessageDeduplicator) IsDuplicate(ctx context.Context, conversationID, content string) (bool, error) {
	since := d.now().UTC().Add(-d.window)
	dup, err := d.store.HasRecentContactMessage(ctx, conversationID, content, since)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return dup, nil
}
