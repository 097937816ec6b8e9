package conversation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/tandem/internal/review"
)

// RunBatch runs one independent conversation per input, at most parallel at
// a time. Verdicts are returned in input order; a failing conversation does
// not stop the others. Errors are joined, each prefixed with its input label.
func RunBatch(ctx context.Context, o *Orchestrator, inputs []review.Input, parallel int) ([]*review.Verdict, error) {
	if parallel < 1 {
		parallel = 1
	}
	verdicts := make([]*review.Verdict, len(inputs))
	errs := make([]error, len(inputs))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, in := range inputs {
		g.Go(func() error {
			v, err := o.Run(ctx, in)
			verdicts[i] = v
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", in.Source.Label(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return verdicts, errors.Join(errs...)
}
