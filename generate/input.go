// Package generate produces suggestion candidates from independent sources:
// filesystem paths, known flags, command history and project heuristics.
package generate

import (
	"strings"

	"github.com/Paranoid-AF/figd/session"
	"mvdan.cc/sh/v3/syntax"
)

// Input is one parsed prediction request, shared by all generators.
// Generators treat it as read-only.
type Input struct {
	// Line is the full command line buffer.
	Line string
	// Cursor is the byte offset of the cursor within Line.
	Cursor int
	// Word is the token being completed: the raw text from WordStart up to
	// the cursor. Empty when the cursor sits after whitespace.
	Word string
	// WordStart is the byte offset where Word begins.
	WordStart int
	// Command is the leading command token of the segment under the cursor.
	Command string
	// Args are the segment's tokens before the cursor, Command included.
	Args []string
	// Snapshot is the session context the request runs against.
	Snapshot session.Snapshot
}

// ParseInput tokenizes the line buffer up to the cursor. Shell-accurate
// lexing is attempted first; incomplete input that does not parse (an open
// quote mid-typing is normal) falls back to a whitespace split.
func ParseInput(line string, cursor int, snap session.Snapshot) Input {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(line) {
		cursor = len(line)
	}
	in := Input{Line: line, Cursor: cursor, Snapshot: snap}

	prefix := line[:cursor]
	if !parseShellPrefix(prefix, &in) {
		splitPrefix(prefix, &in)
	}

	// "sudo git sta" completes git, not sudo.
	for len(in.Args) > 1 && commandPrefixes[in.Command] {
		in.Args = in.Args[1:]
		in.Command = in.Args[0]
	}
	return in
}

// commandPrefixes are wrappers whose first argument is the real command.
var commandPrefixes = map[string]bool{
	"sudo": true, "env": true, "command": true, "nohup": true, "time": true,
}

// parseShellPrefix lexes prefix with a real shell parser and fills in the
// segment under the cursor. Returns false when the prefix does not parse.
func parseShellPrefix(prefix string, in *Input) bool {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(prefix), "")
	if err != nil {
		return false
	}

	// The last call expression is the segment being typed.
	var call *syntax.CallExpr
	syntax.Walk(prog, func(n syntax.Node) bool {
		if c, ok := n.(*syntax.CallExpr); ok {
			call = c
		}
		return true
	})
	if call == nil || len(call.Args) == 0 {
		in.WordStart = len(prefix)
		return true
	}

	for _, arg := range call.Args {
		in.Args = append(in.Args, prefix[arg.Pos().Offset():arg.End().Offset()])
	}
	in.Command = in.Args[0]

	last := call.Args[len(call.Args)-1]
	if int(last.End().Offset()) == len(prefix) {
		in.WordStart = int(last.Pos().Offset())
		in.Word = prefix[in.WordStart:]
	} else {
		// Cursor sits after whitespace: a fresh word begins here.
		in.WordStart = len(prefix)
	}
	return true
}

// splitPrefix is the tokenizer of last resort: split the last pipeline
// segment on whitespace.
func splitPrefix(prefix string, in *Input) {
	segStart := 0
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '|', ';', '&':
			segStart = i + 1
		}
	}

	wordStart := segStart
	for i := segStart; i < len(prefix); i++ {
		if prefix[i] == ' ' || prefix[i] == '\t' {
			wordStart = i + 1
		}
	}

	in.Args = strings.Fields(prefix[segStart:])
	if len(in.Args) > 0 {
		in.Command = in.Args[0]
	}
	in.WordStart = wordStart
	in.Word = prefix[wordStart:]
}

// trimQuotes strips one layer of surrounding (possibly unclosed) quotes
// from a token being completed.
func trimQuotes(word string) string {
	if len(word) == 0 {
		return word
	}
	if word[0] == '\'' || word[0] == '"' {
		quote := word[0]
		word = word[1:]
		if len(word) > 0 && word[len(word)-1] == quote {
			word = word[:len(word)-1]
		}
	}
	return word
}

// quoteToken shell-quotes value when it contains characters that would
// otherwise split or expand.
func quoteToken(value string) string {
	if value == "" || !strings.ContainsAny(value, " \t\n'\"\\$&|;<>()`*?[]#") {
		return value
	}
	quoted, err := syntax.Quote(value, syntax.LangBash)
	if err != nil {
		return value
	}
	return quoted
}
