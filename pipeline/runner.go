// Package pipeline executes the configured step sequence against each
// document: precondition gating, template substitution, backend
// completion, and result accumulation into the workflow context.
// Documents are processed strictly one at a time; each document's output
// is flushed before the next begins.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docsieve/docsieve/backend"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/predicate"
	"github.com/docsieve/docsieve/prompt"
	"github.com/docsieve/docsieve/workflow"
)

// Fetcher supplies documents by identifier. The pipeline does not know
// how they were acquired.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (Document, error)
}

// Sink accepts the accumulated output records and the ordered column
// list and renders them durably. Called after every document so an
// interrupted run preserves all completed documents.
type Sink interface {
	Flush(final map[string]map[string]string, columns []string, debug map[string]map[string]string) error
}

// Config configures a Runner.
type Config struct {
	Backend backend.Completer
	Steps   []workflow.Step

	// PrecheckSystem is the system text for skip-prompt resolution.
	// Empty selects DefaultPrecheckSystem.
	PrecheckSystem string

	// MaxPromptLength bounds substituted prompt length; oversized
	// prompts are split per the template engine. Zero selects the
	// default budget.
	MaxPromptLength int

	// Overlap is carried between adjacent variants when splitting. Zero
	// selects the default.
	Overlap int

	// ScriptsDir resolves relative script-fragment executables.
	ScriptsDir string

	// External variables are seeded into the variable store of every
	// document (bracket-named configuration entries).
	External map[string]string

	// MaxDocLength skips documents whose text exceeds it. Zero means
	// unlimited.
	MaxDocLength int

	// MaxDocs stops the run once this many documents have produced
	// output. Zero means unlimited.
	MaxDocs int

	// StartFrom skips the first StartFrom document identifiers.
	StartFrom int

	Logger *zap.SugaredLogger
}

// Runner drives the per-document state machine over the configured
// steps.
type Runner struct {
	backend         backend.Completer
	steps           []workflow.Step
	precheckSystem  string
	maxPromptLength int
	overlap         int
	scriptsDir      string
	external        map[string]string
	maxDocLength    int
	maxDocs         int
	startFrom       int
	logger          *zap.SugaredLogger
}

// NewRunner validates cfg and constructs a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Backend == nil {
		return nil, errors.New("pipeline requires a backend")
	}
	if err := workflow.Validate(cfg.Steps); err != nil {
		return nil, err
	}
	if cfg.PrecheckSystem == "" {
		cfg.PrecheckSystem = DefaultPrecheckSystem
	}
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = prompt.DefaultMaxLength
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = prompt.DefaultOverlap
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Runner{
		backend:         cfg.Backend,
		steps:           cfg.Steps,
		precheckSystem:  cfg.PrecheckSystem,
		maxPromptLength: cfg.MaxPromptLength,
		overlap:         cfg.Overlap,
		scriptsDir:      cfg.ScriptsDir,
		external:        cfg.External,
		maxDocLength:    cfg.MaxDocLength,
		maxDocs:         cfg.MaxDocs,
		startFrom:       cfg.StartFrom,
		logger:          cfg.Logger,
	}, nil
}

// Run processes the identified documents in order, flushing accumulated
// output to sink after each one. Per-document failures are logged and
// excluded from output; the run continues with the next document.
func (r *Runner) Run(ctx context.Context, c *Context, ids []string, fetch Fetcher, sink Sink) error {
	if r.startFrom > 0 && r.startFrom < len(ids) {
		ids = ids[r.startFrom:]
	} else if r.startFrom >= len(ids) {
		ids = nil
	}

	r.logger.Infow("Starting run",
		"run_id", c.RunID,
		"backend", r.backend.ID(),
		"documents", len(ids),
		"steps", len(r.steps),
	)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, err := fetch.Fetch(ctx, id)
		if err != nil {
			r.logger.Errorw("Failed to fetch document",
				"run_id", c.RunID, "document", id, "error", err)
			continue
		}
		if r.maxDocLength > 0 && len(doc.Text) > r.maxDocLength {
			r.logger.Warnw("Document too long, skipping",
				"run_id", c.RunID, "document", id, "length", len(doc.Text))
			continue
		}
		if len(doc.Text) <= 1 {
			continue
		}

		output, err := r.ProcessDocument(ctx, c, id, doc)
		switch {
		case errors.Is(err, errors.ErrCancelled):
			r.logger.Infow("Document cancelled",
				"run_id", c.RunID, "document", id)
		case err != nil:
			r.logger.Errorw("Error processing document",
				"run_id", c.RunID, "document", id, "error", err)
		case len(output) > 0:
			c.FinalOutput[id] = output
		default:
			r.logger.Warnw("No output for document",
				"run_id", c.RunID, "document", id)
		}

		if sink != nil && len(c.FinalOutput) > 0 {
			if err := sink.Flush(c.FinalOutput, c.OrderedColumns, c.Debug); err != nil {
				r.logger.Errorw("Failed to flush output",
					"run_id", c.RunID, "document", id, "error", err)
			}
		}
		if r.maxDocs > 0 && len(c.FinalOutput) >= r.maxDocs {
			break
		}
	}

	if sink != nil {
		if err := sink.Flush(c.FinalOutput, c.OrderedColumns, c.Debug); err != nil {
			return errors.Wrap(err, "final flush failed")
		}
	}
	r.logger.Infow("Run complete",
		"run_id", c.RunID,
		"documents_out", len(c.FinalOutput),
		"columns", strings.Join(c.OrderedColumns, ","),
	)
	return nil
}

// ProcessDocument runs one document through every step. It returns the
// document's output record, ErrCancelled when a fragment resolved to the
// cancel sentinel, or the underlying error when the document aborted.
// Panics during step execution are recovered and surfaced as errors so a
// single bad document cannot take down the batch.
func (r *Runner) ProcessDocument(ctx context.Context, c *Context, id string, doc Document) (output map[string]string, err error) {
	defer func() {
		if p := recover(); p != nil {
			output = nil
			err = errors.Newf("panic while processing document %s: %v", id, p)
		}
	}()

	c.resetDocument(doc, r.external)
	r.logger.Infow("Processing document", "run_id", c.RunID, "document", id)

	predicates := r.documentPredicates(c)

	cancelled := false
	for i, step := range r.steps {
		stepErr := r.runStep(ctx, c, step, predicates)
		if errors.Is(stepErr, errors.ErrCancelled) {
			cancelled = true
			break
		}
		if stepErr != nil {
			return nil, errors.Wrapf(stepErr, "step %d (%q)", i, step.Name)
		}
	}

	// Snapshot the full variable store for debugging, cancelled or not.
	c.Debug[id] = map[string]string(c.Vars.Clone())

	if cancelled {
		return nil, errors.ErrCancelled
	}

	out := make(map[string]string, len(c.Output))
	for k, v := range c.Output {
		out[k] = v
	}
	return out, nil
}

// documentPredicates overlays the run-scoped predicates onto the
// defaults: is_script_error reads the context rather than the answer
// text.
func (r *Runner) documentPredicates(c *Context) predicate.Registry {
	reg := predicate.Default()
	reg["is_script_error"] = func(answer, param string) bool {
		return c.ScriptExitCode != 0
	}
	return reg
}

// runStep executes one step: precondition gating, fragment resolution in
// declared order, and result recording.
func (r *Runner) runStep(ctx context.Context, c *Context, step workflow.Step, predicates predicate.Registry) error {
	// An unnamed step with no prompts replays the last reply.
	if step.Name == "" && len(step.Prompts) == 0 {
		return nil
	}

	if step.SkipTest != "" {
		answer, err := r.resolveFragment(ctx, c, step.SkipPrompt, r.precheckSystem)
		if err != nil {
			return err
		}
		name, param := splitSkipTest(step.SkipTest)
		if predicates.Lookup(name)(answer, param) {
			// Skipped: reply is left unchanged and nothing is recorded.
			r.logger.Debugw("Step skipped",
				"run_id", c.RunID, "step", step.Name, "test", name)
			return nil
		}
	}

	var result string
	for _, fragment := range step.Prompts {
		answer, err := r.resolveFragment(ctx, c, fragment, step.System)
		if err != nil {
			return err
		}
		if strings.EqualFold(answer, CancelSentinel) {
			return errors.ErrCancelled
		}
		result = answer
		c.Vars["reply"] = result
		c.ReplyCount++
		c.Vars[fmt.Sprintf("reply_%d", c.ReplyCount)] = result
	}

	if result == "" {
		r.logger.Warnw("No result for step", "run_id", c.RunID, "step", step.Name)
		return nil
	}

	c.Vars["reply"] = result
	if step.Name != "" {
		c.Vars[step.Name] = result
	}
	if step.DataOut {
		c.Output[step.Name] = result
		c.recordColumn(step.Name)
	}
	return nil
}

// splitSkipTest parses a skip-test specification into predicate name and
// optional parameter.
func splitSkipTest(spec string) (name, param string) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) > 1 {
		return fields[0], fields[1]
	}
	return fields[0], ""
}
