package notifier

import "context"

// Interface plays session start/end cues. Implementations are best effort:
// a returned error is only ever logged by the caller.
type Interface interface {
	NotifyStart(ctx context.Context) error
	NotifyEnd(ctx context.Context) error
}

// Noop never plays anything.
type Noop struct{}

func (Noop) NotifyStart(context.Context) error { return nil }
func (Noop) NotifyEnd(context.Context) error   { return nil }
