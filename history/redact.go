package history

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Redaction runs on every command before it reaches the durable log.
// Three kinds of secrets are scrubbed: references to non-allowlisted
// environment variables, values assigned to non-allowlisted variables,
// and values handed to credential-carrying flags.

const mask = "***"

// keepVars are variables safe to persist verbatim.
var keepVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "LOGNAME": true,
	"TMPDIR": true, "XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true,
	"XDG_RUNTIME_DIR": true, "DISPLAY": true, "WAYLAND_DISPLAY": true,
	"HISTFILE": true, "HISTSIZE": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true, "LC_ALL": true, "LC_CTYPE": true,
}

// shellParams are special parameters ($?, $!, positionals) that carry no
// secrets.
var shellParams = map[string]bool{
	"?": true, "!": true, "#": true, "@": true, "*": true,
	"-": true, "$": true, "_": true,
	"0": true, "1": true, "2": true, "3": true, "4": true,
	"5": true, "6": true, "7": true, "8": true, "9": true,
}

// secretFlags name CLI options whose argument is a credential.
var secretFlags = map[string]bool{
	"--password": true, "--passwd": true, "--token": true,
	"--api-key": true, "--apikey": true, "--secret": true,
	"--client-secret": true, "--access-token": true,
	"--auth-token": true, "--private-key": true, "--bearer": true,
}

// RedactCommand scrubs secrets from a command line before persistence.
// Safe variables (PATH, HOME, etc.) and special shell parameters ($?,
// $!, etc.) survive untouched. Lines that fail shell parsing fall back
// to a regex pass.
func RedactCommand(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return redactPlain(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CallExpr:
			scrubFlagValues(n)
		case *syntax.ParamExp:
			if n.Param != nil && !keepVars[n.Param.Value] && !shellParams[n.Param.Value] {
				n.Param.Value = "REDACTED"
			}
		case *syntax.Assign:
			if n.Name != nil && !keepVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: mask}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(0))
	if err := printer.Print(&buf, prog); err != nil {
		return redactPlain(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// scrubFlagValues masks arguments following a secret flag, in both the
// "--password hunter2" and "--password=hunter2" spellings. Values built
// from expansions are left to the variable passes.
func scrubFlagValues(call *syntax.CallExpr) {
	pending := false
	for _, w := range call.Args {
		if pending {
			w.Parts = []syntax.WordPart{&syntax.Lit{Value: mask}}
			pending = false
			continue
		}
		text := literalText(w)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		if secretFlags[lower] {
			pending = true
			continue
		}
		if eq := strings.IndexByte(lower, '='); eq > 0 && secretFlags[lower[:eq]] {
			w.Parts = []syntax.WordPart{&syntax.Lit{Value: text[:eq+1] + mask}}
		}
	}
}

// literalText flattens a word made only of literal parts; anything with
// an expansion returns "".
func literalText(w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		lit, ok := part.(*syntax.Lit)
		if !ok {
			return ""
		}
		sb.WriteString(lit.Value)
	}
	return sb.String()
}

var (
	reFlagSecret = regexp.MustCompile(`(?i)(--(?:password|passwd|token|api-?key|secret|client-secret|access-token|auth-token|private-key|bearer))([= ])\S+`)
	reBracedRef  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reVarRef     = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	reEnvAssign  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// redactPlain is the fallback for lines that fail shell parsing.
func redactPlain(cmd string) string {
	// --password hunter2 / --token=abc → masked value
	cmd = reFlagSecret.ReplaceAllString(cmd, "${1}${2}"+mask)

	// ${VAR} → ${REDACTED}
	cmd = reBracedRef.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reBracedRef.FindStringSubmatch(m)[1]
		if keepVars[name] || shellParams[name] {
			return m
		}
		return "${REDACTED}"
	})

	// $VAR → $REDACTED
	cmd = reVarRef.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reVarRef.FindStringSubmatch(m)[1]
		if name == "REDACTED" { // already handled by the brace pass
			return m
		}
		if keepVars[name] || shellParams[name] {
			return m
		}
		return "$REDACTED"
	})

	// VAR=value → VAR=***
	cmd = reEnvAssign.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reEnvAssign.FindStringSubmatch(m)[1]
		if keepVars[name] {
			return m
		}
		return name + "=" + mask
	})

	return cmd
}
