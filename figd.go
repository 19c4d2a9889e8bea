// Package figd defines the request/response types for figd IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package figd

// Request kinds accepted by the daemon, carried in Request.Type.
const (
	TypePredict     = "predict"
	TypeRecord      = "record"
	TypeContext     = "context"
	TypeToggleGhost = "toggle_ghost"
	TypeLearning    = "learning"
	TypeConfig      = "config"
)

// Response formats for predict requests.
const (
	FormatGhost    = "ghost"
	FormatDropdown = "dropdown"
)

// Category identifies the source a candidate came from.
type Category string

// Candidate categories, ordered from most to least trusted by the ranker.
const (
	CategoryHistory Category = "history"
	CategoryCommand Category = "command"
	CategoryPath    Category = "path"
	CategoryFile    Category = "file"
	CategoryFlag    Category = "flag"
	CategoryGit     Category = "git"
	CategoryProject Category = "project"
	CategorySnippet Category = "snippet"
)

// Shells with first-class integration support.
const (
	ShellBash = "bash"
	ShellZsh  = "zsh"
	ShellFish = "fish"
)

// KnownShell reports whether name is a shell the daemon understands.
func KnownShell(name string) bool {
	switch name {
	case ShellBash, ShellZsh, ShellFish:
		return true
	}
	return false
}

// Request is the envelope sent from a shell client to the daemon.
// Type selects the operation; the remaining fields are populated per type.
type Request struct {
	// Type is one of the Type* constants.
	Type string `json:"type"`
	// RequestID is a per-session incrementing identifier assigned by the shell.
	// The daemon echoes it back in the response for ordering.
	RequestID int `json:"request_id,omitempty"`
	// SessionID identifies the shell session (typically "<shell>-<pid>").
	SessionID string `json:"session_id,omitempty"`
	// ClientPID is the shell process id, used for liveness checks.
	ClientPID int `json:"client_pid,omitempty"`

	// Input is the current command line content (predict).
	Input string `json:"input,omitempty"`
	// CursorPos is the cursor position within the input (predict).
	CursorPos int `json:"cursor_pos,omitempty"`
	// Format is "ghost" or "dropdown" (predict). Defaults to dropdown.
	Format string `json:"format,omitempty"`
	// MaxCandidates caps the number of candidates returned (predict).
	MaxCandidates int `json:"max_candidates,omitempty"`

	// Command is the executed command text (record).
	Command string `json:"command,omitempty"`
	// ExitCode is the command's exit status, when the shell knows it (record).
	ExitCode *int `json:"exit_code,omitempty"`

	// Shell is the shell flavour: bash, zsh or fish (context).
	Shell string `json:"shell,omitempty"`
	// Cwd is the working directory (context, predict, record).
	Cwd string `json:"cwd,omitempty"`
	// Term is the terminal identifier, e.g. $TERM (context).
	Term string `json:"term,omitempty"`
	// GitBranch is the current branch as reported by the shell prompt (context).
	GitBranch string `json:"git_branch,omitempty"`

	// Action selects a sub-operation for learning ("reset") and
	// config ("get", "reload", "defaults", "validate") requests.
	Action string `json:"action,omitempty"`
}

// Candidate represents a single suggestion with a confidence score.
type Candidate struct {
	// Display is the short text shown in a dropdown row.
	Display string `json:"display"`
	// Insert is the full command line after accepting the candidate.
	Insert string `json:"insert"`
	// Category is one of the Category* constants.
	Category Category `json:"category"`
	// Score is the candidate's confidence (0.0 to 1.0), composite after ranking.
	Score float64 `json:"score"`
	// CursorPos is the desired cursor position within Insert.
	// nil means cursor at end.
	CursorPos *int `json:"cursor_pos,omitempty"`
	// Meta carries optional provider metadata (e.g. "file_type", "doc").
	Meta map[string]string `json:"meta,omitempty"`
}

// PredictResponse is sent from the daemon for predict requests.
type PredictResponse struct {
	// RequestID is echoed from the request for ordering on the client side.
	RequestID int `json:"request_id"`
	// Candidates is the ordered suggestion list. Empty means "nothing to
	// suggest"; clients fall back to native completion either way.
	Candidates []Candidate `json:"candidates"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// AckResponse acknowledges record, context and learning requests.
type AckResponse struct {
	RequestID int    `json:"request_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     *Error `json:"error,omitempty"`
}

// ToggleResponse reports the new ghost-text state for a session.
type ToggleResponse struct {
	RequestID int    `json:"request_id,omitempty"`
	Ghost     bool   `json:"ghost"`
	Error     *Error `json:"error,omitempty"`
}

// ConfigResponse is sent from the daemon in response to a config request.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload" and "defaults").
	Config *Config `json:"config,omitempty"`
	// Warnings contains configuration warnings (for "validate").
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the shell client.
type Error struct {
	// Code is a machine-readable error identifier
	// (e.g. "invalid_context", "persistence_error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes used on the wire.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidContext   = "invalid_context"
	CodePersistenceError = "persistence_error"
	CodeUnknownType      = "unknown_type"
	CodeUnknownAction    = "unknown_action"
	CodeConfigError      = "config_error"
)
