// Package rank orders candidates by a composite confidence score and
// applies the presentation rules for ghost and dropdown output.
package rank

import (
	"sort"
	"strings"
	"unicode/utf8"

	figd "github.com/Paranoid-AF/figd"
)

const (
	exactPrefixBonus  = 0.2
	foldedPrefixBonus = 0.1
	lengthPenaltyStep = 0.002
	lengthPenaltyCap  = 0.2
)

// categoryPriority breaks score ties. Lower is better.
var categoryPriority = map[figd.Category]int{
	figd.CategoryHistory: 0,
	figd.CategoryCommand: 1,
	figd.CategoryPath:    2,
	figd.CategoryFile:    2,
	figd.CategorySnippet: 3,
	figd.CategoryFlag:    4,
	figd.CategoryGit:     5,
	figd.CategoryProject: 6,
}

// Ranker scores and orders candidates. Weights missing from the map
// default to 1.0.
type Ranker struct {
	weights            map[string]float64
	minGhostConfidence float64
}

func New(weights map[string]float64, minGhostConfidence float64) *Ranker {
	return &Ranker{weights: weights, minGhostConfidence: minGhostConfidence}
}

// Rank scores, orders, deduplicates and truncates candidates for dropdown
// output. The input slice is not modified.
func (r *Ranker) Rank(cands []figd.Candidate, line string, limit int) []figd.Candidate {
	scored := make([]figd.Candidate, len(cands))
	copy(scored, cands)
	for i := range scored {
		scored[i].Score = r.score(scored[i], line)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		pi, pj := priority(scored[i].Category), priority(scored[j].Category)
		if pi != pj {
			return pi < pj
		}
		return scored[i].Insert < scored[j].Insert
	})

	// After sorting, the first occurrence of each insert text is the best.
	out := scored[:0]
	seen := make(map[string]bool, len(scored))
	for _, c := range scored {
		if seen[c.Insert] {
			continue
		}
		seen[c.Insert] = true
		out = append(out, c)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Ghost picks the single inline suggestion: the best candidate whose
// insert text strictly extends the typed line, provided its confidence
// clears the floor. An empty result means show nothing.
func (r *Ranker) Ghost(cands []figd.Candidate, line string) []figd.Candidate {
	ranked := r.Rank(cands, line, 0)
	for _, c := range ranked {
		if len(c.Insert) <= len(line) || !strings.HasPrefix(c.Insert, line) {
			continue
		}
		if c.Score < r.minGhostConfidence {
			return nil
		}
		return []figd.Candidate{c}
	}
	return nil
}

func (r *Ranker) score(c figd.Candidate, line string) float64 {
	weight := 1.0
	if w, ok := r.weights[string(c.Category)]; ok {
		weight = w
	}
	s := c.Score * weight

	if line != "" {
		if strings.HasPrefix(c.Insert, line) {
			s += exactPrefixBonus
		} else if strings.HasPrefix(strings.ToLower(c.Insert), strings.ToLower(line)) {
			s += foldedPrefixBonus
		}
	}

	// Long completions over short input are speculative.
	extra := utf8.RuneCountInString(c.Insert) - utf8.RuneCountInString(line)
	if extra > 0 {
		penalty := float64(extra) * lengthPenaltyStep
		if penalty > lengthPenaltyCap {
			penalty = lengthPenaltyCap
		}
		s -= penalty
	}

	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func priority(cat figd.Category) int {
	if p, ok := categoryPriority[cat]; ok {
		return p
	}
	return len(categoryPriority)
}
