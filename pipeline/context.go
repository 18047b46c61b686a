package pipeline

import (
	"github.com/google/uuid"

	"github.com/docsieve/docsieve/prompt"
)

// CancelSentinel terminates a document's processing early when any
// fragment resolves to it (case-insensitively). Not an error: the
// document simply produces no output.
const CancelSentinel = "!cancel!"

// DefaultPrecheckSystem is the system text used when resolving skip
// prompts, unless the configuration overrides precheck_system.
const DefaultPrecheckSystem = "You are helping to automate a workflow. " +
	"You will be asked a question to verify the information you have given. " +
	"You must only answer the question in EXACTLY the format requested. " +
	"The answer will only ever be read by a computer, NEVER add any other " +
	"commentary or automated processing will fail. It is more important to " +
	"give a correctly formatted answer than to be sure the answer is correct."

// Document is the unit of work: seed text plus named section texts. How
// it was acquired is the document source's business.
type Document struct {
	Text     string            `json:"text"`
	Sections map[string]string `json:"sections"`
}

// Context is the run-scoped mutable state threaded through the pipeline.
// The per-document portion (Vars, ReplyCount, Output, ScriptExitCode) is
// fully replaced at the start of each document; the run-scoped portion
// (FinalOutput, OrderedColumns, Debug) accumulates across documents.
type Context struct {
	// RunID tags log lines and debug output for this run.
	RunID string

	// Vars is the variable store read by template substitution and
	// mutated by every step. Baseline keys paper and cancel are present
	// before the first step runs.
	Vars prompt.Vars

	// ReplyCount numbers the replies produced within the current
	// document (reply_1, reply_2, ...).
	ReplyCount int

	// Output accumulates the current document's externally visible step
	// results.
	Output map[string]string

	// ScriptExitCode holds the last external script's non-zero exit
	// code, read by the is_script_error predicate.
	ScriptExitCode int

	// FinalOutput maps document ID to that document's output record.
	FinalOutput map[string]map[string]string

	// OrderedColumns lists output field names in first-seen order across
	// the whole run. Append-only, no duplicates.
	OrderedColumns []string

	// Debug snapshots each document's full variable store at completion.
	Debug map[string]map[string]string
}

// NewContext creates a run context with a fresh run ID.
func NewContext() *Context {
	return &Context{
		RunID:       uuid.NewString(),
		Vars:        prompt.Vars{},
		FinalOutput: make(map[string]map[string]string),
		Debug:       make(map[string]map[string]string),
	}
}

// resetDocument replaces the per-document state with the baseline for
// doc: seed text under paper, the cancel sentinel, every section text,
// and the provided external variables. Nothing leaks between documents.
func (c *Context) resetDocument(doc Document, external map[string]string) {
	c.Vars = prompt.Vars{
		"paper":  doc.Text,
		"cancel": CancelSentinel,
	}
	for name, text := range doc.Sections {
		c.Vars[name] = text
	}
	for name, value := range external {
		c.Vars[name] = value
	}
	c.ReplyCount = 0
	c.Output = make(map[string]string)
	c.ScriptExitCode = 0
}

// recordColumn appends name to the ordered column list the first time it
// appears.
func (c *Context) recordColumn(name string) {
	for _, existing := range c.OrderedColumns {
		if existing == name {
			return
		}
	}
	c.OrderedColumns = append(c.OrderedColumns, name)
}
