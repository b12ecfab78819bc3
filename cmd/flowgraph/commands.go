package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/flowgraph"
	"github.com/meikuraledutech/flowgraph/runner"
)

func newRunCommand(c *cli) *cobra.Command {
	var (
		inputs  []string
		asJSON  bool
		showLog bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Run a workflow document",
		Long: `Run executes the workflow breadth-first from its start node. Inputs are given
as --input name=value and become the start node's variables.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			s, err := c.openStore(args[0])
			if err != nil {
				return err
			}

			reg, closeRunners, err := c.registry(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer closeRunners()

			report, runErr := runner.NewDriver(s, reg, runner.WithLogger(c.logger)).Run(cmd.Context(), values)
			if report == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				if showLog {
					for _, t := range report.Traces {
						line := fmt.Sprintf("#%d %-12s %-10s %s", t.Seq, t.NodeID, t.Status, t.Message)
						if msg := traceError(t); msg != "" {
							line += ": " + msg
						}
						fmt.Fprintln(out, line)
					}
				}
				fmt.Fprintln(out, report.Result)
			}

			if runErr != nil {
				return runErr
			}
			for _, t := range report.Traces {
				if t.Status == flowgraph.RunStatusError {
					return fmt.Errorf("node %s failed: %s", t.NodeID, traceError(t))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Input value as name=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full run report as JSON")
	cmd.Flags().BoolVar(&showLog, "trace", false, "Print the execution trace before the result")
	return cmd
}

func traceError(t flowgraph.TraceEntry) string {
	if t.Data == nil {
		return ""
	}
	return t.Data.Error
}

func parseInputs(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid input %q, want name=value", p)
		}
		values[name] = value
	}
	return values, nil
}

func newValidateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow-file>",
		Short: "Check a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore(args[0])
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					for _, e := range joined.Unwrap() {
						fmt.Fprintln(cmd.OutOrStdout(), "- "+e.Error())
					}
				}
				return fmt.Errorf("%s is invalid", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes, %d edges)\n", args[0], len(s.Nodes()), len(s.Edges()))
			return nil
		},
	}
}

func newVarsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "vars <workflow-file> <node-id>",
		Short: "List the variables a node may reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.openStore(args[0])
			if err != nil {
				return err
			}
			if _, ok := s.Node(args[1]); !ok {
				return fmt.Errorf("%w: %s", flowgraph.ErrNodeNotFound, args[1])
			}
			out := cmd.OutOrStdout()
			for _, g := range s.NodeAvailableVariables(args[1]) {
				fmt.Fprintln(out, g.NodeName)
				for _, v := range g.Variables {
					fmt.Fprintf(out, "  {%s}\n", v.Name)
				}
			}
			return nil
		},
	}
}

func newTemplateCommand() *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the built-in news explainer workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc := flowgraph.DefaultTemplate()
			if output != "" {
				return flowgraph.WriteDocumentFile(output, doc)
			}
			return flowgraph.EncodeDocument(cmd.OutOrStdout(), doc, flowgraph.Format(format))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file; the extension picks the format")
	cmd.Flags().StringVar(&format, "format", string(flowgraph.FormatJSON), "Format for stdout: json or yaml")
	return cmd
}

func newConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a workflow document between JSON and YAML",
		Long:  `Convert reads <in> and writes <out>, picking each format by file extension. Malformed JSON input is repaired when possible.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			doc, err := flowgraph.ReadDocumentFile(args[0])
			if err != nil {
				return err
			}
			return flowgraph.WriteDocumentFile(args[1], doc)
		},
	}
}
