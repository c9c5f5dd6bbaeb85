package subcommands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"MemHarness/internal/config"
	"MemHarness/internal/evalqa"
	"MemHarness/internal/llm"
	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/report"
	"MemHarness/internal/timing"
)

// EvalOptions overrides the llm and eval sections of the configuration.
type EvalOptions struct {
	Provider string
	Model    string
	APIBase  string
	APIKey   string
	Limit    int
	Full     bool
	Dataset  string
	Output   string
	Path     string
}

func (o EvalOptions) apply(cfg *config.Config) {
	if o.Provider != "" {
		cfg.LLM.Provider = o.Provider
	}
	if o.Model != "" {
		cfg.LLM.Model = o.Model
	}
	if o.APIBase != "" {
		cfg.LLM.APIBase = o.APIBase
	}
	if o.APIKey != "" {
		cfg.LLM.APIKey = o.APIKey
	}
	if o.Limit > 0 {
		cfg.Eval.Limit = o.Limit
	}
	if o.Full {
		cfg.Eval.Full = true
	}
	if o.Dataset != "" {
		cfg.Eval.Dataset = o.Dataset
	}
	if o.Path != "" {
		cfg.Eval.Path = o.Path
	}
}

// RunEval judges every dataset item against a fresh memory instance and
// writes the accuracy report.
func RunEval(ctx context.Context, cfg config.Config, opts EvalOptions) error {
	opts.apply(&cfg)

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	defer llm.Close(provider)

	limit := cfg.Eval.Limit
	if cfg.Eval.Full {
		limit = 0
	}
	items, err := evalqa.LoadDataset(cfg.Eval.Dataset, limit)
	if err != nil {
		return err
	}

	var provisioner memclient.Provisioner
	switch timing.Path(strings.ToLower(strings.TrimSpace(cfg.Eval.Path))) {
	case timing.Embedded, "":
		emb, err := newEmbedder(cfg)
		if err != nil {
			return err
		}
		defer emb.Close()
		provisioner = embeddedProvisioner(cfg, emb)
	case timing.Network:
		if err := checkServer(ctx, cfg); err != nil {
			return err
		}
		provisioner = networkProvisioner(cfg)
	default:
		return fmt.Errorf("unknown memory path %q (want embedded or network)", cfg.Eval.Path)
	}

	fmt.Printf("Evaluating %d items with %s (%s) on the %s path\n",
		len(items), provider.Name(), provider.Model(), provisioner.Path())

	progress := report.NewProgress(os.Stderr, 40)
	defer progress.Done()

	evalOpts := evalqa.OptionsFromConfig(cfg.Eval)
	evalOpts.Progress = func(done, total int, res evalqa.Result) {
		logging.Logger.Debug("item evaluated",
			"question_id", res.QuestionID, "correct", res.Correct, "predicted", res.PredictedIndex,
			"parsed", res.Parsed, "failed", res.Failed)
		progress.Update("eval", done, total)
	}

	rep, runErr := evalqa.NewRunner(provider, provisioner, evalOpts).Run(ctx, items)
	progress.Done()
	emit(cfg, report.EvalTables(rep), report.EvalMarkdown(rep))

	file := opts.Output
	if file == "" {
		file = cfg.Output.EvalFile
	}
	if file == "" {
		file = evalqa.DefaultOutputFile(provider.Name())
	}
	path := outputPath(cfg, file)
	if err := report.WriteJSON(path, rep); err != nil {
		return err
	}
	fmt.Printf("Results saved to: %s\n", path)

	withSink(cfg, func(s *report.Sink) (string, error) { return s.WriteEval(ctx, rep) })
	return runErr
}
