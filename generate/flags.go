package generate

import (
	"context"
	"strings"

	figd "github.com/Paranoid-AF/figd"
)

// FlagGenerator completes flags for the leading command token from a
// static lookup table. No filesystem or network access.
type FlagGenerator struct{}

func (g *FlagGenerator) Name() string { return "flags" }

type flagSpec struct {
	name string
	doc  string
}

// subcommandAware commands get a "<cmd> <sub>" table lookup first.
var subcommandAware = map[string]bool{
	"git": true, "cargo": true, "go": true, "npm": true, "docker": true,
}

var flagTable = map[string][]flagSpec{
	"ls": {
		{"-l", "long listing format"},
		{"-a", "include hidden entries"},
		{"-la", "long listing, hidden included"},
		{"-lh", "long listing, human-readable sizes"},
		{"-t", "sort by modification time"},
		{"-R", "recurse into subdirectories"},
		{"--all", "include hidden entries"},
	},
	"grep": {
		{"-i", "case-insensitive match"},
		{"-r", "recurse into directories"},
		{"-n", "print line numbers"},
		{"-v", "invert match"},
		{"-l", "print matching file names only"},
		{"-E", "extended regular expressions"},
		{"-F", "fixed-string match"},
		{"--color", "highlight matches"},
	},
	"rm": {
		{"-r", "recurse into directories"},
		{"-f", "ignore missing files, never prompt"},
		{"-rf", "recursive force remove"},
		{"-i", "prompt before every removal"},
		{"-v", "explain what is being done"},
	},
	"git": {
		{"--version", "print git version"},
		{"--help", "show help"},
		{"-C", "run as if started in the given path"},
		{"-c", "pass a one-off config value"},
	},
	"git status": {
		{"-s", "short format"},
		{"--short", "short format"},
		{"-b", "show branch info in short format"},
	},
	"git commit": {
		{"-m", "commit message"},
		{"-a", "stage modified files automatically"},
		{"--amend", "amend the previous commit"},
		{"--no-verify", "skip pre-commit hooks"},
	},
	"git log": {
		{"--oneline", "one line per commit"},
		{"--graph", "draw the commit graph"},
		{"-p", "show patches"},
		{"-n", "limit the number of commits"},
	},
	"git push": {
		{"-u", "set upstream for the branch"},
		{"--force-with-lease", "force push, refusing to clobber others"},
		{"--tags", "push tags as well"},
		{"--set-upstream", "set upstream for the branch"},
	},
	"git pull": {
		{"--rebase", "rebase instead of merge"},
		{"--ff-only", "fast-forward only"},
	},
	"git checkout": {
		{"-b", "create and switch to a new branch"},
		{"--track", "set upstream when branching"},
	},
	"git diff": {
		{"--cached", "diff staged changes"},
		{"--stat", "summary of changes"},
		{"--name-only", "changed file names only"},
	},
	"git add": {
		{"-A", "stage all changes"},
		{"-p", "interactively pick hunks"},
		{"-u", "stage tracked-file changes"},
	},
	"go build": {
		{"-o", "output file name"},
		{"-v", "print package names as they compile"},
		{"-race", "enable the race detector"},
		{"-tags", "build tags"},
	},
	"go test": {
		{"-run", "run tests matching a pattern"},
		{"-v", "verbose test output"},
		{"-race", "enable the race detector"},
		{"-count", "run tests this many times"},
		{"-cover", "report coverage"},
	},
	"cargo build": {
		{"--release", "optimized build"},
		{"--target", "build for the given target triple"},
	},
	"cargo test": {
		{"--release", "test the optimized build"},
		{"--no-default-features", "disable default features"},
	},
	"npm install": {
		{"--save-dev", "add to devDependencies"},
		{"-g", "install globally"},
		{"--save-exact", "pin the exact version"},
	},
	"docker": {
		{"-d", "detached mode"},
		{"--rm", "remove container on exit"},
		{"-it", "interactive with a TTY"},
		{"-p", "publish a container port"},
		{"-v", "bind mount a volume"},
		{"-e", "set an environment variable"},
		{"--name", "assign a container name"},
	},
	"make": {
		{"-j", "parallel jobs"},
		{"-B", "unconditionally rebuild"},
		{"-n", "dry run"},
		{"-C", "change directory first"},
	},
	"curl": {
		{"-s", "silent mode"},
		{"-L", "follow redirects"},
		{"-o", "write output to file"},
		{"-O", "write output to remote file name"},
		{"-H", "add a request header"},
		{"-X", "request method"},
		{"-d", "request body data"},
		{"-v", "verbose transfer log"},
	},
	"tar": {
		{"-x", "extract"},
		{"-c", "create"},
		{"-z", "gzip compression"},
		{"-v", "verbose"},
		{"-f", "archive file name"},
		{"-C", "change directory first"},
	},
	"kubectl": {
		{"-n", "namespace"},
		{"--namespace", "namespace"},
		{"-o", "output format"},
		{"--context", "kubeconfig context"},
	},
	"rsync": {
		{"-a", "archive mode"},
		{"-v", "verbose"},
		{"-z", "compress during transfer"},
		{"-P", "progress and partial transfers"},
		{"--delete", "delete extraneous destination files"},
		{"-n", "dry run"},
	},
	"find": {
		{"-name", "match by name"},
		{"-iname", "match by name, case-insensitive"},
		{"-type", "match by entry type"},
		{"-maxdepth", "limit recursion depth"},
		{"-exec", "run a command per match"},
	},
	"ssh": {
		{"-p", "port"},
		{"-i", "identity file"},
		{"-L", "local port forward"},
		{"-v", "verbose"},
	},
}

func (g *FlagGenerator) Generate(_ context.Context, in Input) ([]figd.Candidate, error) {
	if in.Command == "" || !strings.HasPrefix(in.Word, "-") {
		return nil, nil
	}

	specs := lookupFlags(in)
	if len(specs) == 0 {
		return nil, nil
	}

	var out []figd.Candidate
	for _, spec := range specs {
		if !strings.HasPrefix(spec.name, in.Word) {
			continue
		}
		insert := in.Line[:in.WordStart] + spec.name + in.Line[in.Cursor:]
		cand := figd.Candidate{
			Display:  spec.name,
			Insert:   insert,
			Category: figd.CategoryFlag,
			Score:    0.5,
			Meta:     map[string]string{"doc": spec.doc},
		}
		if in.Cursor < len(in.Line) {
			pos := in.WordStart + len(spec.name)
			cand.CursorPos = &pos
		}
		out = append(out, cand)
	}
	return out, nil
}

// lookupFlags prefers the "<cmd> <sub>" table for subcommand-style tools,
// falling back to the bare command.
func lookupFlags(in Input) []flagSpec {
	if subcommandAware[in.Command] && len(in.Args) >= 2 && !strings.HasPrefix(in.Args[1], "-") {
		if specs, ok := flagTable[in.Command+" "+in.Args[1]]; ok {
			return specs
		}
	}
	return flagTable[in.Command]
}
