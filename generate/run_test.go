package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	figd "github.com/Paranoid-AF/figd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	name  string
	cands []figd.Candidate
	err   error
	delay time.Duration
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) Generate(ctx context.Context, _ Input) ([]figd.Candidate, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.cands, s.err
}

func TestRunnerCollectsAll(t *testing.T) {
	r := NewRunner([]Generator{
		&stubGenerator{name: "a", cands: []figd.Candidate{{Insert: "one"}}},
		&stubGenerator{name: "b", cands: []figd.Candidate{{Insert: "two"}, {Insert: "three"}}},
	}, 50*time.Millisecond, nil)

	out := r.Run(context.Background(), Input{})
	assert.Len(t, out, 3)
}

func TestRunnerSlowGeneratorAbandoned(t *testing.T) {
	r := NewRunner([]Generator{
		&stubGenerator{name: "fast", cands: []figd.Candidate{{Insert: "fast"}}},
		&stubGenerator{name: "slow", delay: 5 * time.Second, cands: []figd.Candidate{{Insert: "slow"}}},
	}, 30*time.Millisecond, nil)

	start := time.Now()
	out := r.Run(context.Background(), Input{})
	elapsed := time.Since(start)

	require.Len(t, out, 1)
	assert.Equal(t, "fast", out[0].Insert)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRunnerGeneratorErrorIgnored(t *testing.T) {
	r := NewRunner([]Generator{
		&stubGenerator{name: "bad", err: errors.New("boom")},
		&stubGenerator{name: "good", cands: []figd.Candidate{{Insert: "ok"}}},
	}, 50*time.Millisecond, nil)

	out := r.Run(context.Background(), Input{})
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Insert)
}

func TestRunnerEmptyRegistry(t *testing.T) {
	r := NewRunner(nil, 50*time.Millisecond, nil)
	assert.Empty(t, r.Run(context.Background(), Input{}))
}

func TestRunnerParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner([]Generator{
		&stubGenerator{name: "slow", delay: 5 * time.Second},
	}, time.Second, nil)

	start := time.Now()
	r.Run(ctx, Input{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
