package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meikuraledutech/flowgraph"
	"github.com/meikuraledutech/flowgraph/internal/config"
	"github.com/meikuraledutech/flowgraph/runner"
)

// registryFunc builds the runners for the run command.
type registryFunc func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (runner.Registry, func() error, error)

func defaultRegistry(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (runner.Registry, func() error, error) {
	return runner.NewRegistry(ctx, cfg.RunnerSettings(), logger)
}

// cli carries the state shared by subcommands after the root pre-run.
type cli struct {
	configFile string
	debug      bool

	cfg      *config.Config
	logger   zerolog.Logger
	registry registryFunc
}

// NewRootCommand returns the flowgraph command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultRegistry)
}

func newRootCommand(registry registryFunc) *cobra.Command {
	c := &cli{registry: registry, logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "flowgraph",
		Short: "Workflow graph toolkit",
		Long: `flowgraph edits, validates and runs workflow documents: graphs of start, llm,
knowledge, conditional, search and output nodes stored as JSON or YAML.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.configFile)
			if err != nil {
				return err
			}
			if c.debug {
				cfg.LogLevel = "debug"
			}
			c.cfg = cfg
			c.logger = cfg.SetupLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "", "Config file (default: flowgraph.yaml in ., ./config or $HOME/.flowgraph)")
	rootCmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging, including workflow store diagnostics")

	rootCmd.AddCommand(newRunCommand(c))
	rootCmd.AddCommand(newValidateCommand(c))
	rootCmd.AddCommand(newVarsCommand(c))
	rootCmd.AddCommand(newTemplateCommand())
	rootCmd.AddCommand(newConvertCommand())

	return rootCmd
}

// openStore reads a document file into a workflow store.
func (c *cli) openStore(path string) (*flowgraph.WorkflowStore, error) {
	doc, err := flowgraph.ReadDocumentFile(path)
	if err != nil {
		return nil, err
	}
	return flowgraph.NewWorkflowStore(
		flowgraph.WithLogger(flowgraph.NewLogger(c.logger, "[WorkflowStore]", c.debug)),
		flowgraph.WithDocument(doc),
	), nil
}
