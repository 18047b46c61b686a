package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/prompt"
)

// Fragment markers. A fragment's leading marker selects how it is
// resolved; anything unmarked is substituted and sent to the backend.
// The expression marker includes its trailing space so quote fragments
// that merely start with the same letters are not misrouted.
const (
	exprMarker   = "#expr "
	scriptMarker = "#!"
	quoteMarker  = "#"
)

// collapseWhitespace reduces every run of whitespace (including newlines
// and tabs) to a single space. Every fragment result passes through here
// before being stored.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveFragment resolves one prompt fragment to its text result under
// the given system text.
func (r *Runner) resolveFragment(ctx context.Context, c *Context, fragment, system string) (string, error) {
	switch {
	case strings.HasPrefix(fragment, exprMarker):
		return r.resolveExpr(c, strings.TrimPrefix(fragment, exprMarker)), nil
	case strings.HasPrefix(fragment, scriptMarker):
		return r.resolveScript(ctx, c, fragment)
	case strings.HasPrefix(fragment, quoteMarker):
		// Literal passthrough: substituted, never sent to a backend.
		substituted := prompt.Substitute(fragment, c.Vars, false)
		return collapseWhitespace(strings.TrimPrefix(substituted, quoteMarker)), nil
	default:
		return r.resolveCompletion(ctx, c, fragment, system)
	}
}

// resolveExpr evaluates an embedded expression after escaped
// substitution. Expressions run in a sandboxed environment holding only
// the variable store; they cannot reach the filesystem, the network, or
// the process. Evaluation errors are logged and yield an empty result so
// step processing continues.
func (r *Runner) resolveExpr(c *Context, body string) string {
	substituted := prompt.Substitute(body, c.Vars, true)

	env := make(map[string]interface{}, len(c.Vars))
	for name, value := range c.Vars {
		env[name] = value
	}

	out, err := expr.Eval(substituted, env)
	if err != nil {
		r.logger.Warnw("Expression fragment failed",
			"run_id", c.RunID,
			"expression", substituted,
			"error", err,
		)
		return ""
	}
	return collapseWhitespace(fmt.Sprintf("%v", out))
}

// resolveScript runs an external script fragment: substitute without a
// length bound, split on the first space into executable name plus one
// argument string, resolve the executable against the scripts folder,
// and capture stdout as the result. The remainder is passed as a single
// argument, never re-tokenized: it usually carries substituted document
// text. A non-zero exit is recorded in the context for later predicate
// checks; it does not abort the step.
func (r *Runner) resolveScript(ctx context.Context, c *Context, fragment string) (string, error) {
	substituted := prompt.Substitute(fragment, c.Vars, false)
	body := strings.TrimPrefix(substituted, scriptMarker)

	name, arg := body, ""
	if i := strings.Index(body, " "); i >= 0 {
		name, arg = body[:i], body[i+1:]
	}
	if name == "" {
		return "", errors.Newf("empty script fragment %q", fragment)
	}

	exe := name
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(r.scriptsDir, exe)
	}

	var args []string
	if arg != "" {
		args = append(args, arg)
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	var stdout strings.Builder
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", errors.Wrapf(err, "cannot run script %s", exe)
		}
		c.ScriptExitCode = exitErr.ExitCode()
		r.logger.Warnw("Script fragment exited non-zero",
			"run_id", c.RunID,
			"script", exe,
			"exit_code", c.ScriptExitCode,
		)
	}
	return collapseWhitespace(stdout.String()), nil
}

// resolveCompletion applies bounded substitution and sends each resulting
// variant to the backend in order, joining the answers with single
// spaces.
func (r *Runner) resolveCompletion(ctx context.Context, c *Context, fragment, system string) (string, error) {
	variants := prompt.SubstituteBounded(fragment, c.Vars, r.maxPromptLength, r.overlap)

	results := make([]string, 0, len(variants))
	for _, variant := range variants {
		answer, err := r.backend.Complete(ctx, system, variant)
		if err != nil {
			return "", err
		}
		results = append(results, answer)
	}
	return collapseWhitespace(strings.Join(results, " ")), nil
}
