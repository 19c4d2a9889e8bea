package generate

import (
	"context"
	"strconv"
	"strings"

	figd "github.com/Paranoid-AF/figd"
	"github.com/Paranoid-AF/figd/history"
)

// HistoryGenerator completes whole command lines from the learning index,
// backed by the similarity index when exact prefix matches run dry.
type HistoryGenerator struct {
	Index   *history.Index
	Similar *history.Similar
	// Limit caps how many index entries are considered.
	Limit int
}

func (g *HistoryGenerator) Name() string { return "history" }

func (g *HistoryGenerator) Generate(ctx context.Context, in Input) ([]figd.Candidate, error) {
	if g.Index == nil {
		return nil, nil
	}
	limit := g.Limit
	if limit <= 0 {
		limit = 10
	}

	prefix := in.Line[:in.Cursor]
	entries := g.Index.Query(prefix, limit)

	var out []figd.Candidate
	var maxScore float64
	for _, e := range entries {
		if e.Score > maxScore {
			maxScore = e.Score
		}
	}
	for _, e := range entries {
		// Relative confidence: the best match gets 0.9, the rest scale
		// down with their decayed score.
		score := 0.5
		if maxScore > 0 {
			score = 0.5 + 0.4*(e.Score/maxScore)
		}
		out = append(out, figd.Candidate{
			Display:  e.Command,
			Insert:   e.Command,
			Category: figd.CategoryHistory,
			Score:    score,
			Meta:     map[string]string{"count": strconv.Itoa(e.Count)},
		})
	}

	if ctx.Err() != nil {
		return out, nil
	}

	// Few exact matches: pad with lexically similar history.
	if len(out) < 3 && g.Similar != nil && strings.TrimSpace(prefix) != "" {
		seen := make(map[string]bool, len(out))
		for _, c := range out {
			seen[c.Insert] = true
		}
		for _, cmd := range g.Similar.Search(prefix, 3) {
			if seen[cmd] {
				continue
			}
			out = append(out, figd.Candidate{
				Display:  cmd,
				Insert:   cmd,
				Category: figd.CategoryHistory,
				Score:    0.35,
				Meta:     map[string]string{"source": "similar"},
			})
		}
	}
	return out, nil
}
