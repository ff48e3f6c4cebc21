package main

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs op concurrently for every id and waits for all of them,
// returning the first error encountered (errgroup cancels the group
// context on the first failure, but does not stop already-issued sibling
// calls mid-flight since Runtime operations aren't individually
// cancellation-aware beyond ctx).
func fanOut(ctx context.Context, ids []string, op func(ctx context.Context, id string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return op(gctx, id)
		})
	}
	return g.Wait()
}
