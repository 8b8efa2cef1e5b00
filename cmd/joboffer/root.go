package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/joboffer/internal/cli"
	"github.com/hyperjump/joboffer/internal/config"
	"github.com/hyperjump/joboffer/internal/estimator"
	"github.com/hyperjump/joboffer/internal/pipeline"
	"github.com/hyperjump/joboffer/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	app               = "joboffer"
	defaultConfigPath = "/usr/local/etc/joboffer/config.yaml"
)

// Actual version can be specified in build command.
var version = "dev"

// env carries the root flags and environment shared by every subcommand.
type env struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("JOBOFFER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           app,
		Short:         "joboffer trains and serves a sentiment classifier for job offers",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", defaultConfigPath, "config file path (env JOBOFFER_CONFIG)")
	root.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	root.PersistentFlags().StringP("output", "o", string(cli.OutputText), "output format: text or json")
	_ = v.BindPFlags(root.PersistentFlags())

	e := &env{v: v}
	root.AddCommand(
		newTrainCmd(e),
		newClassifyCmd(e),
		newExportCmd(e),
		newServeCmd(e),
		newRunsCmd(e),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory is preferred, and a missing default file yields the defaults.
// Returns the config and the path that was actually loaded, empty for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config, applies cmd's flag overrides and builds the logger.
func (e *env) setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, path, err := loadConfig(e.v.GetString("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, nil, err
	}
	cfg.Debug = cfg.Debug || e.v.GetBool("debug")
	logger, err := utils.NewLogger(cfg.Debug, e.v.GetBool("json"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", path), zap.Bool("debug", cfg.Debug))
	return cfg, logger, nil
}

func (e *env) format() (cli.OutputFormat, error) {
	return cli.ParseFormat(e.v.GetString("output"))
}

// applyFlags overrides config values with the flags the user set.
// Flags a command does not define are ignored.
func applyFlags(f *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Lookup(name) != nil && f.Changed(name) {
			err = apply()
		}
	}
	set("source", func() (e error) { cfg.Data.Source, e = f.GetString("source"); return })
	set("frac", func() (e error) { cfg.Data.Frac, e = f.GetFloat64("frac"); return })
	set("seed", func() error {
		seed, e := f.GetInt64("seed")
		cfg.Data.Seed = &seed
		cfg.Model.Seed = seed
		return e
	})
	set("model-dir", func() (e error) { cfg.Model.Dir, e = f.GetString("model-dir"); return })
	set("steps", func() (e error) { cfg.Model.TrainSteps, e = f.GetInt("steps"); return })
	set("optimizer", func() error {
		name, e := f.GetString("optimizer")
		if e != nil {
			return e
		}
		cfg.Model.Optimizer, e = estimator.ParseOptimizer(name)
		return e
	})
	set("learning-rate", func() (e error) { cfg.Model.LearningRate, e = f.GetFloat64("learning-rate"); return })
	set("hidden-units", func() (e error) { cfg.Model.HiddenUnits, e = f.GetIntSlice("hidden-units"); return })
	set("module-spec", func() (e error) { cfg.Embedding.ModuleSpec, e = f.GetString("module-spec"); return })
	set("db", func() (e error) { cfg.Storage.DatabasePath, e = f.GetString("db"); return })
	set("host", func() (e error) { cfg.Server.Host, e = f.GetString("host"); return })
	set("port", func() (e error) { cfg.Server.Port, e = f.GetInt("port"); return })
	set("watch", func() (e error) { cfg.Server.Watch, e = f.GetBool("watch"); return })
	if err != nil {
		return err
	}
	if cfg.Data.Frac <= 0 || cfg.Data.Frac >= 1 {
		return fmt.Errorf("frac must be in (0, 1), got %v", cfg.Data.Frac)
	}
	if cfg.Model.TrainSteps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", cfg.Model.TrainSteps)
	}
	return nil
}

// pipelineOptions converts the config for pipeline.New. The data source is
// left to the caller.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Frac:       cfg.Data.Frac,
		Seed:       cfg.Data.Seed,
		ModelDir:   cfg.Model.Dir,
		TrainSteps: cfg.Model.TrainSteps,
		Estimator:  cfg.EstimatorConfig(),
		Embedding:  cfg.EmbeddingOptions(),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", app, version)
		},
	}
}
