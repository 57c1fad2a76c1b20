// Package commands implements the frnsc-prefetch CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/ForensicRS/frnsc-prefetch/internal/logger"
	"github.com/ForensicRS/frnsc-prefetch/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string

	// cfg is the loaded configuration, available to all subcommands.
	cfg *config.Config
)

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "frnsc-prefetch",
	Short: "Windows Prefetch artifact parser",
	Long: `frnsc-prefetch parses Windows Prefetch (.pf) files: execution times,
run counts, loaded dependencies, memory-block trace chains and volume
references, including the compressed MAM containers of Windows 10+.

Point it at individual .pf files, a directory of artifacts, or the root
of an extracted disk image.

Use "frnsc-prefetch [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return logger.Init(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
	},
}

// Execute adds all child commands to the root command and runs it. Called
// by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
