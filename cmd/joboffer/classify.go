package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hyperjump/joboffer/internal/cli"
	"github.com/hyperjump/joboffer/internal/config"
	"github.com/hyperjump/joboffer/internal/estimator"
	"github.com/hyperjump/joboffer/internal/extract"
	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newClassifyCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [document...]",
		Short: "Classify job offers with a trained model",
		Long: `Classify labels each document as positive or negative using the model in
--model-dir. Documents come from arguments, --file (PDF, DOCX, ODT, RTF, XLSX,
HTML or plain text), standard input ("-"), or an interactive prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, e, args)
		},
	}
	f := cmd.Flags()
	f.String("model-dir", "", "directory of a trained model")
	f.String("module-spec", "", "embedding module the model was trained with")
	f.StringSliceP("file", "f", nil, "document file to classify (repeatable)")
	f.BoolP("interactive", "i", false, "prompt for documents until interrupted")
	return cmd
}

// openModel reopens the trained model in cfg.Model.Dir for inference. The
// checkpoint's hidden units are adopted, and so is its embedding module unless
// keepSpec is set.
func openModel(ctx context.Context, cfg *config.Config, keepSpec bool, logger *zap.Logger) (*pipeline.Pipeline, error) {
	if cfg.Model.Dir == "" {
		return nil, errors.New("no model: set model.dir in the config or pass --model-dir")
	}
	if !estimator.HasCheckpoint(cfg.Model.Dir) {
		return nil, fmt.Errorf("no trained model in %s", cfg.Model.Dir)
	}
	info, err := estimator.Inspect(cfg.Model.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Model.HiddenUnits = info.HiddenUnits
	if !keepSpec {
		cfg.Embedding.ModuleSpec = info.ModuleSpec
	}
	logger.Debug("opening model", zap.String("dir", cfg.Model.Dir), zap.String("module_spec", cfg.Embedding.ModuleSpec), zap.Int64("global_step", info.GlobalStep))
	p, err := pipeline.New(ctx, pipelineOptions(cfg), logger)
	if err != nil {
		return nil, err
	}
	if err := p.PrepareModel(ctx, cfg.Model.Dir); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// collectDocuments returns the documents named by args and --file. "-" reads stdin.
func collectDocuments(cmd *cobra.Command, args []string) ([]string, error) {
	var docs []string
	for _, arg := range args {
		if arg != "-" {
			docs = append(docs, arg)
			continue
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		docs = append(docs, string(data))
	}
	files, _ := cmd.Flags().GetStringSlice("file")
	extractor := extract.NewExtractor()
	for _, path := range files {
		text, err := extractor.Extract(path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		docs = append(docs, text)
	}
	return docs, nil
}

func runClassify(cmd *cobra.Command, e *env, args []string) error {
	cfg, logger, err := e.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	format, err := e.format()
	if err != nil {
		return err
	}
	interactive, _ := cmd.Flags().GetBool("interactive")
	docs, err := collectDocuments(cmd, args)
	if err != nil {
		return err
	}
	if len(docs) == 0 && !interactive {
		return errors.New("nothing to classify: pass documents, --file or --interactive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p, err := openModel(ctx, cfg, cmd.Flags().Changed("module-spec"), logger)
	if err != nil {
		return err
	}
	defer p.Close()

	results := make([]cli.ClassifiedDocument, 0, len(docs))
	for _, doc := range docs {
		c, err := p.ClassifyDetail(ctx, doc)
		if err != nil {
			return err
		}
		results = append(results, cli.ClassifiedDocument{Document: doc, Classification: c})
	}
	if len(results) > 0 {
		if err := cli.WriteClassifications(cmd.OutOrStdout(), results, format); err != nil {
			return err
		}
	}
	if interactive {
		return classifyInteractive(ctx, cmd, p)
	}
	return nil
}

// classifyInteractive prompts for job offers until Ctrl-C or Ctrl-D.
func classifyInteractive(ctx context.Context, cmd *cobra.Command, p *pipeline.Pipeline) error {
	out := cmd.OutOrStdout()
	for {
		prompt := promptui.Prompt{
			Label: "Job offer",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("enter some text")
				}
				return nil
			},
		}
		doc, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}
		c, err := p.ClassifyDetail(ctx, doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (p(positive)=%.4f)\n", c.Label, c.Probability)
	}
}
