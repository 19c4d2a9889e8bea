package history

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// similarDims is the dimensionality of the hashed-trigram vectors. Small
// enough to keep inserts cheap, large enough that unrelated commands
// rarely collide on every bucket.
const similarDims = 64

// Similar finds historical commands resembling the current input. Vectors
// are hashed character trigrams computed locally, indexed in an HNSW graph
// keyed by command hash.
type Similar struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[string]
	commands map[string]string // hash -> command text
}

// NewSimilar creates an empty similarity index.
func NewSimilar() *Similar {
	return &Similar{
		graph:    hnsw.NewGraph[string](),
		commands: make(map[string]string),
	}
}

// Add inserts a command unless an identical one is already indexed.
func (s *Similar) Add(cmd string) {
	cmd = Normalize(cmd)
	if cmd == "" {
		return
	}
	key := hashCommand(cmd)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graph.Lookup(key); exists {
		return
	}
	s.graph.Add(hnsw.MakeNode(key, embedTrigrams(cmd)))
	s.commands[key] = cmd
}

// Search returns up to topK commands most similar to the query, excluding
// exact matches of the query itself.
func (s *Similar) Search(query string, topK int) []string {
	query = Normalize(query)
	if query == "" || topK <= 0 {
		return nil
	}
	vec := embedTrigrams(query)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph.Len() == 0 {
		return nil
	}

	neighbors := s.graph.Search(vec, topK+1)
	out := make([]string, 0, topK)
	for _, n := range neighbors {
		cmd := s.commands[n.Key]
		if cmd == "" || cmd == query {
			continue
		}
		out = append(out, cmd)
		if len(out) == topK {
			break
		}
	}
	return out
}

// Len returns the number of indexed commands.
func (s *Similar) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len()
}

// Clear drops the whole similarity index.
func (s *Similar) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = hnsw.NewGraph[string]()
	s.commands = make(map[string]string)
}

// embedTrigrams maps character trigrams into a fixed-size bucket vector and
// L2-normalizes it, so cosine distance approximates lexical similarity.
func embedTrigrams(text string) []float32 {
	vec := make([]float32, similarDims)
	runes := []rune(" " + text + " ")
	for i := 0; i+3 <= len(runes); i++ {
		h := fnv.New32a()
		h.Write([]byte(string(runes[i : i+3])))
		vec[h.Sum32()%similarDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func hashCommand(cmd string) string {
	h := sha256.Sum256([]byte(cmd))
	return fmt.Sprintf("%x", h)
}
