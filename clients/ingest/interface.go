package ingest

import "context"

// Uploader delivers one encoded clip. Delivery is at most once.
type Uploader interface {
	Upload(ctx context.Context, clip []byte) error
}
