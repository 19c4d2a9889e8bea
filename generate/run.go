package generate

import (
	"context"
	"time"

	figd "github.com/Paranoid-AF/figd"
	"go.uber.org/zap"
)

// Generator produces candidates from a single information source. A
// generator must watch ctx: when the shared deadline fires, whatever it has
// produced so far is dropped and the response goes out without it.
type Generator interface {
	Name() string
	Generate(ctx context.Context, in Input) ([]figd.Candidate, error)
}

// Runner races a fixed registry of generators against a shared deadline.
type Runner struct {
	generators []Generator
	budget     time.Duration
	logger     *zap.Logger
}

// NewRunner creates a runner over the given generators. budget is the
// per-request deadline shared by all of them.
func NewRunner(generators []Generator, budget time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget <= 0 {
		budget = 50 * time.Millisecond
	}
	return &Runner{generators: generators, budget: budget, logger: logger}
}

// Run collects candidates from every generator. Generators that have not
// finished by the deadline are abandoned; their goroutines drain into a
// buffered channel and their output is discarded. A slow source never
// stalls the response.
func (r *Runner) Run(ctx context.Context, in Input) []figd.Candidate {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	type result struct {
		name  string
		cands []figd.Candidate
	}
	ch := make(chan result, len(r.generators))

	start := time.Now()
	for _, g := range r.generators {
		g := g
		go func() {
			cands, err := g.Generate(ctx, in)
			if err != nil {
				r.logger.Debug("generator error",
					zap.String("generator", g.Name()), zap.Error(err))
				cands = nil
			}
			ch <- result{g.Name(), cands}
		}()
	}

	var out []figd.Candidate
	for remaining := len(r.generators); remaining > 0; remaining-- {
		select {
		case res := <-ch:
			out = append(out, res.cands...)
		case <-ctx.Done():
			r.logger.Debug("generator deadline hit",
				zap.Int("pending", remaining),
				zap.Duration("elapsed", time.Since(start)))
			return out
		}
	}
	return out
}
