package crawl

import (
	"context"
	"time"
)

// Fetcher retrieves a product page and returns the rendered body plus
// metadata. Implementations must honor ctx cancellation; a non-nil error
// means the page could not be retrieved at all (transport failure).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// CheckpointStore persists run progress for resumption.
//
// Load on a missing or corrupt checkpoint returns a zero State and nil error;
// it never fails the run. Save must be atomic with respect to a concurrent
// Load by another process: a reader never observes a half-written snapshot.
type CheckpointStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// ResultSink serializes the final aggregate document.
type ResultSink interface {
	Write(ctx context.Context, doc Document) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation used outside tests.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
