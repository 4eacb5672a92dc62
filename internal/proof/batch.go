package proof

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// VerifyAll verifies independent proofs against one root in parallel and
// returns the quantity proven by each. The first failure cancels the rest.
func VerifyAll(ctx context.Context, proofs []*Proof, root types.Hash) ([]uint64, error) {
	out := make([]uint64, len(proofs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range proofs {
		i, p := i, p
		g.Go(func() error {
			q, err := p.Verify(ctx, root)
			if err != nil {
				return fmt.Errorf("proof %d: %w", i, err)
			}
			out[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
