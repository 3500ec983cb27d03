package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runSources executes fn once per source through a bounded errgroup. With a
// parallelism of one, sources run strictly in declaration order. Under
// FailAbort the first failure cancels the group and every source that has
// not started yet keeps its StatusNotRun outcome.
func runSources(
	ctx context.Context,
	names []string,
	opts RunOptions,
	fn func(ctx context.Context, i int) SourceOutcome,
) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(names))
	for i, name := range names {
		outcomes[i] = SourceOutcome{Source: name, Status: StatusNotRun}
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = 1
	}

	var g *errgroup.Group
	gctx := ctx
	if opts.FailurePolicy == FailContinue {
		g = &errgroup.Group{}
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(limit)

	for i := range names {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out := fn(gctx, i)
			outcomes[i] = out
			if out.Status == StatusFailed && opts.FailurePolicy != FailContinue {
				return out.Err
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
