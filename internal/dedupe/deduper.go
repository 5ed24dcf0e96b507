package dedupe

import "context"

// Deduplicator drops redelivered events. The feed is at-least-once, so the
// same event id (tx hash + log index) can arrive again after a reconnect or
// a consumer restart.
//
// IsDuplicate is a read-only check; MarkSeen records the id only after the
// event's writes have landed, so a crash mid-event leads to a reprocess
// rather than a silent drop. The consumer is single-threaded, which keeps
// the check-then-mark pair race free.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, id string) (bool, error)
	MarkSeen(ctx context.Context, id string) error
	Health(ctx context.Context) error
}
