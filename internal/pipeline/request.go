package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ProcessParts runs every part of one request through the pipeline with a
// shared aggregate budget. Parts with independent byte streams are processed
// concurrently; a failure in one part never aborts its siblings, with a
// single exception: crossing the aggregate ceiling cancels everything still
// in flight, since the request as a whole can no longer succeed.
//
// When the declared part sizes already overflow the aggregate ceiling the
// request is rejected before a single byte is stored.
func (e *Engine) ProcessParts(ctx context.Context, parts []Part) []PartOutcome {
	outcomes := make([]PartOutcome, len(parts))
	for i, part := range parts {
		outcomes[i] = PartOutcome{FieldName: part.FieldName, FileName: part.FileName}
	}

	budget := e.NewBudget()
	if err := budget.CheckDeclared(parts); err != nil {
		for i := range outcomes {
			outcomes[i].Err = err
		}
		return outcomes
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			result, err := e.Store(gctx, part, budget)
			if err != nil {
				outcomes[i].Err = err
				if KindOf(err) == KindRequestTooLarge {
					return err
				}
				return nil
			}
			outcomes[i].Result = &result
			return nil
		})
	}
	// The only error an errgroup goroutine returns is the aggregate overflow,
	// already recorded in its outcome; siblings cancelled by it carry their
	// own context errors.
	_ = g.Wait()
	return outcomes
}
