package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-tune/experiment"
	"github.com/YuminosukeSato/scigo-tune/model_selection"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
)

var (
	logLevel  string
	logFormat string
)

// defaultLogLevel keeps cell output on stdout free of search progress lines;
// --log-level info adds them on stderr.
const defaultLogLevel = "warn"

// NewRootCommand builds the scigo-tune command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "scigo-tune",
		Short:             "Cross-validated grid and randomized search over classifier pipelines",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	root.PersistentFlags().StringVarP(&logLevel, "log-level", "", defaultLogLevel, "Logging level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&logFormat, "log-format", "", log.FormatPretty, "Logging format: pretty or json")

	root.AddCommand(RunCommand())
	root.AddCommand(ListCommand())
	root.AddCommand(BuiltinCommand())
	root.AddCommand(EstimatorsCommand())
	return root
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	return log.SetupFormat(cmd.ErrOrStderr(), logLevel, logFormat)
}

// loadExperiments reads file, or the builtin cells when file is empty.
func loadExperiments(file string) ([]*experiment.Experiment, error) {
	if file == "" {
		return experiment.Builtin(), nil
	}
	return experiment.LoadFile(file)
}

// RunCommand executes experiments and prints each cell's results; with
// --plot-dir it also writes one score plot per experiment.
func RunCommand() *cobra.Command {
	var file string
	var name string
	var opts experiment.RunOptions

	cmd := &cobra.Command{
		Use:   "run [-f experiments.hcl] [-n name]",
		Short: "Runs every experiment of a file (or the builtin cells) top to bottom",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exps, err := loadExperiments(file)
			if err != nil {
				return err
			}
			if name != "" {
				exp, err := experiment.Find(exps, name)
				if err != nil {
					return err
				}
				exps = []*experiment.Experiment{exp}
			}
			_, err = experiment.RunAll(cmd.Context(), exps, cmd.OutOrStdout(), opts)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "HCL experiment file (optional, uses the builtin cells if not present)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "run only the named experiment")
	cmd.Flags().IntVarP(&opts.NJobs, "n-jobs", "j", 0, "parallel fits; -1 uses every CPU, 0 keeps each experiment's n_jobs")
	cmd.Flags().StringVarP(&opts.PlotDir, "plot-dir", "p", "", "directory receiving one PNG per experiment (optional)")

	return cmd
}

// ListCommand prints a table of the experiments in a file or the builtin cells.
func ListCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "list [-f experiments.hcl]",
		Short: "Lists the experiments of a file (or the builtin cells)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exps, err := loadExperiments(file)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEARCH\tDATASET\tSCORING\tTITLE")
			for _, e := range exps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Search, e.Dataset.Kind, e.Scoring, e.Title)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "HCL experiment file (optional)")
	return cmd
}

// BuiltinCommand prints the embedded HCL of the builtin cells.
func BuiltinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "builtin",
		Short: "Prints the HCL source of the builtin cells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(experiment.BuiltinSource())
			return err
		},
	}
}

// EstimatorsCommand lists the names accepted by estimator and scoring
// attributes.
func EstimatorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "estimators",
		Short: "Lists the estimator names and scorers usable in experiment files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "estimators:")
			for _, n := range experiment.EstimatorNames() {
				fmt.Fprintln(out, "  "+n)
			}
			fmt.Fprintln(out, "scoring:")
			for _, n := range model_selection.ScorerNames() {
				fmt.Fprintln(out, "  "+n)
			}
			return nil
		},
	}
}
