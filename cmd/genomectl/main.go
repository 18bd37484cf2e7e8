// Command genomectl builds, inspects, exports and mutates genome populations.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/baldhumanity/neuroevo-go/population"
	"github.com/baldhumanity/neuroevo-go/population/nn"
	"github.com/baldhumanity/neuroevo-go/population/store"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "genomectl",
	Short: "Build and manage neuroevolution genome populations",
	Long: `genomectl builds populations of genomes from a configuration file,
persists them to a memory or SQLite store, exports single genomes to disk and
re-enters saved models into the gene pool as mutants.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		setLoggers(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func setLoggers(l *zap.Logger) {
	population.SetLogger(l)
	store.SetLogger(l)
	nn.SetLogger(l)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Build a fresh population and persist it",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "List the genomes of a persisted population",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id> <genome-id> [dir]",
	Short: "Write one genome's tensors to a directory (default: save_dir)",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runExport,
}

var mutateCmd = &cobra.Command{
	Use:   "mutate <model-dir>",
	Short: "Load a saved model, mutate it once and save the mutant",
	Args:  cobra.ExactArgs(1),
	RunE:  runMutate,
}

var (
	checkpointPath string
	mutateOut      string
	mutateSeed     int64
	mutateID       int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "genome.ini", "Configuration file (INI, or YAML by extension)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	initCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "Also write a gzip checkpoint to this path")

	mutateCmd.Flags().StringVarP(&mutateOut, "out", "o", "", "Directory for the mutant (required)")
	mutateCmd.Flags().Int64Var(&mutateSeed, "seed", 0, "Random seed (0 picks a time-based seed)")
	mutateCmd.Flags().IntVar(&mutateID, "id", 1, "Genome id for the mutant")
	_ = mutateCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(mutateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
