package keyword

import (
	"context"
	"io"
	"time"
)

// DispatchAPI submits a batch for out-of-process execution.
type DispatchAPI interface {
	Submit(ctx context.Context, req BatchRequest) (Ack, error)
}

// ResultStore reads batch artifacts. Get returns ErrArtifactNotFound when the
// worker has not written the artifact yet.
type ResultStore interface {
	Get(ctx context.Context, batchID string) (Artifact, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// ArtifactStore is a store that can both write and read batch artifacts.
type ArtifactStore interface {
	BlobStore
	ResultStore
}

// Fetcher retrieves a search result page for a query URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Publisher receives job status transitions.
type Publisher interface {
	Publish(status JobStatus)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
