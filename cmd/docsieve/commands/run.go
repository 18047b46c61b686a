package commands

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsieve/docsieve/backend"
	"github.com/docsieve/docsieve/cache"
	"github.com/docsieve/docsieve/conf"
	"github.com/docsieve/docsieve/errors"
	"github.com/docsieve/docsieve/logger"
	"github.com/docsieve/docsieve/output"
	"github.com/docsieve/docsieve/pipeline"
	"github.com/docsieve/docsieve/retry"
	"github.com/docsieve/docsieve/source"
	"github.com/docsieve/docsieve/workflow"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run [document-id ...]",
	Short: "Process documents through the configured extraction steps",
	Long: `Process documents through the configured extraction steps.

The configuration file names the steps file, the backend, the documents
to process and the output file. Document identifiers given as arguments
override the configured list.

Examples:
  docsieve run -c extraction.csv
  docsieve run -c extraction.csv --max-docs 10
  docsieve run -c extraction.csv PMC8675309 38100000`,
	RunE: runRun,
}

var (
	configFlag    string
	outputFlag    string
	stepsFlag     string
	maxDocsFlag   int
	startFromFlag int
)

func init() {
	RunCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file (.csv, .json or .toml)")
	RunCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file, overrides the configured one")
	RunCmd.Flags().StringVar(&stepsFlag, "steps", "", "Steps file, overrides the configured one")
	RunCmd.Flags().IntVar(&maxDocsFlag, "max-docs", 0, "Stop after this many documents produced output")
	RunCmd.Flags().IntVar(&startFromFlag, "start-from", 0, "Skip this many documents from the start of the list")
	_ = RunCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := conf.Load(configFlag)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stepsPath := stepsFlag
	if stepsPath == "" {
		stepsPath = cfg.ResolvePath(cfg.GetString("steps_file", cfg.GetString("prompts_file", "")))
	}
	if stepsPath == "" {
		return errors.New("no steps file configured (set steps_file or pass --steps)")
	}
	steps, err := workflow.Load(stepsPath)
	if err != nil {
		return errors.Wrap(err, "failed to load steps")
	}

	ids, err := documentIDs(cfg, args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no documents to process (set ids, ids_file, or pass identifiers as arguments)")
	}

	store, err := cache.Open(cfg.ResolvePath(cfg.GetString("cache_file", "responses.db")), logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open response cache")
	}
	defer store.Close()

	model, err := buildBackend(cfg, store)
	if err != nil {
		return err
	}

	loader := source.New(source.Config{
		DataCacheDir: cfg.ResolvePath(cfg.GetString("data_folder", "")),
		FilesDir:     cfg.ResolvePath(cfg.GetString("files_folder", "")),
		CorpusURL:    cfg.GetString("corpus_url", ""),
		FetchScript:  cfg.GetString("fetch_script", ""),
		Logger:       logger.Logger,
	})

	outputPath := outputFlag
	if outputPath == "" {
		outputPath = cfg.ResolvePath(cfg.GetString("output_file", "output.csv"))
	}
	sink, err := output.NewWriter(outputPath, cfg.GetString("id_column", "id"), logger.Logger)
	if err != nil {
		return err
	}

	maxDocs := maxDocsFlag
	if maxDocs == 0 {
		maxDocs = cfg.GetInt("max_docs", 0)
	}
	startFrom := startFromFlag
	if startFrom == 0 {
		startFrom = cfg.GetInt("start_from", 0)
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Backend:         model,
		Steps:           steps,
		PrecheckSystem:  cfg.GetString("precheck_system", ""),
		MaxPromptLength: cfg.GetInt("max_prompt_length", 0),
		Overlap:         cfg.GetInt("overlap", 0),
		ScriptsDir:      cfg.ResolvePath(cfg.GetString("scripts_folder", "")),
		External:        externalVars(cfg),
		MaxDocLength:    cfg.GetInt("max_doc_length", 0),
		MaxDocs:         maxDocs,
		StartFrom:       startFrom,
		Logger:          logger.Logger,
	})
	if err != nil {
		return err
	}

	logger.Infow("Starting run",
		"documents", len(ids),
		"steps", len(steps),
		"backend", model.ID(),
		"output", outputPath,
	)
	return runner.Run(ctx, pipeline.NewContext(), ids, loader, sink)
}

// buildBackend constructs the configured backend variant around the
// shared response cache.
func buildBackend(cfg *conf.Store, store *cache.Store) (backend.Completer, error) {
	kind, err := backend.ParseKind(cfg.GetString("backend", cfg.GetString("engine", "anthropic")))
	if err != nil {
		return nil, err
	}

	policy := retry.Default(logger.Logger)
	if d := cfg.GetInt("timeout", 0); d > 0 {
		policy.InitialDelay = time.Duration(d) * time.Second
	}
	if d := cfg.GetInt("max_timeout", 0); d > 0 {
		policy.MaxDelay = time.Duration(d) * time.Second
	}

	return backend.New(backend.Config{
		Kind:              kind,
		Model:             cfg.GetString("model", ""),
		APIKey:            cfg.GetString("api_key", ""),
		BaseURL:           cfg.GetString("base_url", ""),
		ScriptPath:        cfg.ResolvePath(cfg.GetString("backend_script", cfg.GetString("model_script", ""))),
		MaxTokens:         cfg.GetInt("max_tokens", 0),
		RequestsPerMinute: cfg.GetInt("requests_per_minute", 0),
		Cache:             store,
		Retry:             policy,
		Logger:            logger.Logger,
	})
}

// documentIDs resolves the list of documents to process: command-line
// arguments win, then the configured list, then the configured file of
// identifiers (one per line, # comments allowed).
func documentIDs(cfg *conf.Store, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if ids := cfg.GetStrings("ids"); len(ids) > 0 {
		return ids, nil
	}

	path := cfg.ResolvePath(cfg.GetString("ids_file", ""))
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ids file")
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read ids file")
	}
	return ids, nil
}

// externalVars collects the bracket-named configuration entries: a row
// keyed "[animal]" seeds the substitution variable animal for every
// document. Ordinary settings never reach the variable store.
func externalVars(cfg *conf.Store) map[string]string {
	vars := make(map[string]string)
	for _, key := range cfg.Keys() {
		if len(key) > 2 && strings.HasPrefix(key, "[") && strings.HasSuffix(key, "]") {
			vars[key[1:len(key)-1]] = cfg.GetString(key, "")
		}
	}
	return vars
}
