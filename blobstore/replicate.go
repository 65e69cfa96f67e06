package blobstore

import (
	"bytes"
	"context"

	"golang.org/x/sync/errgroup"
)

// Replicate writes the same blob to every store concurrently. It is used
// to keep artifact copies in sync across a local store and one or more
// remote backends. The first error cancels the remaining uploads.
func Replicate(ctx context.Context, name string, data []byte, stores ...Store) error {
	if len(stores) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	// Limit concurrency to avoid FD exhaustion or rate limits.
	g.SetLimit(4)

	for _, store := range stores {
		g.Go(func() error {
			return store.Put(ctx, name, bytes.NewReader(data), int64(len(data)))
		})
	}

	return g.Wait()
}
