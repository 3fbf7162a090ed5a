package strategy

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ScanAll screens several symbols concurrently. The per-symbol results
// keep their best-credit-first ordering; symbols yielding no candidates
// map to an empty slice.
func (g *Generator) ScanAll(ctx context.Context, symbols []string) map[string][]Candidate {
	var mu sync.Mutex
	results := make(map[string][]Candidate, len(symbols))

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, symbol := range symbols {
		symbol := symbol
		eg.Go(func() error {
			found := g.FindCandidates(symbol)
			mu.Lock()
			results[symbol] = found
			mu.Unlock()
			return nil
		})
	}
	// FindCandidates only logs failures, so the group never errors.
	_ = eg.Wait()
	return results
}
