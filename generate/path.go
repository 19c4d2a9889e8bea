package generate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	figd "github.com/Paranoid-AF/figd"
)

// PathGenerator completes the token at the cursor against filesystem
// entries. Listings are truncated at MaxEntries to bound latency.
type PathGenerator struct {
	// MaxEntries caps how many directory entries are considered.
	MaxEntries int
	// IgnoredDirs are directory names skipped in listings.
	IgnoredDirs []string
}

const defaultMaxPathEntries = 200

func (g *PathGenerator) Name() string { return "paths" }

func (g *PathGenerator) Generate(ctx context.Context, in Input) ([]figd.Candidate, error) {
	// Only complete arguments. Typing the command itself is the history
	// generator's business, unless the token already looks like a path.
	word := trimQuotes(in.Word)
	if in.Command == "" && !looksLikePath(word) {
		return nil, nil
	}
	if in.Command == word && !looksLikePath(word) {
		return nil, nil
	}

	cwd := in.Snapshot.Cwd
	if cwd == "" {
		cwd = "."
	}

	dirPart, base := splitToken(word)
	listDir := resolveDir(cwd, dirPart)

	entries, err := os.ReadDir(listDir)
	if err != nil {
		// Nonexistent or unreadable directory means no candidates, not an error.
		return nil, nil
	}

	maxEntries := g.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxPathEntries
	}
	ignored := make(map[string]bool, len(g.IgnoredDirs))
	for _, d := range g.IgnoredDirs {
		ignored[d] = true
	}

	var out []figd.Candidate
	for i, entry := range entries {
		if i%64 == 0 && ctx.Err() != nil {
			return out, nil
		}
		if len(out) >= maxEntries {
			break
		}

		name := entry.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if base == "" && strings.HasPrefix(name, ".") {
			continue
		}

		isDir := entry.IsDir()
		if isDir && ignored[name] {
			continue
		}

		display := name
		token := dirPart + quoteToken(name)
		category := figd.CategoryFile
		score := 0.5
		fileType := "file"
		if isDir {
			display += "/"
			token += "/"
			category = figd.CategoryPath
			score = 0.55
			fileType = "dir"
		}

		insert := in.Line[:in.WordStart] + token + in.Line[in.Cursor:]
		cand := figd.Candidate{
			Display:  display,
			Insert:   insert,
			Category: category,
			Score:    score,
			Meta:     map[string]string{"file_type": fileType},
		}
		if in.Cursor < len(in.Line) {
			pos := in.WordStart + len(token)
			cand.CursorPos = &pos
		}
		out = append(out, cand)
	}
	return out, nil
}

// looksLikePath reports whether the token is path-shaped even in command
// position, e.g. "./scr" or "~/bin/".
func looksLikePath(word string) bool {
	return strings.HasPrefix(word, "./") || strings.HasPrefix(word, "../") ||
		strings.HasPrefix(word, "/") || strings.HasPrefix(word, "~/")
}

// splitToken splits the typed token into its directory part (kept verbatim
// in the completion) and the basename prefix to match entries against.
func splitToken(word string) (dirPart, base string) {
	idx := strings.LastIndexByte(word, '/')
	if idx < 0 {
		return "", word
	}
	return word[:idx+1], word[idx+1:]
}

// resolveDir maps the typed directory part onto a listable absolute path.
func resolveDir(cwd, dirPart string) string {
	expanded := dirPart
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	if expanded == "" {
		return cwd
	}
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(cwd, expanded)
}
