// Package cli implements the ambigdb command tree.
package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// errRejected marks a command that ran to completion but rejected at least
// one candidate.
var errRejected = errors.New("candidate rejected")

// ExitCode maps a command error to a process exit status: 2 for rejected
// candidates, 1 for everything else.
func ExitCode(err error) int {
	if errors.Is(err, errRejected) {
		return 2
	}
	return 1
}

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ambigdb",
		Short: "Validate and repair ambiguity concepts in synthetic SQL databases",
		Long: `ambigdb checks that a generated database actually realizes an ambiguity concept.

For Attachment, Scope and Vague concepts it locates the tables, columns and values
that carry the concept, repairs missing Scope links inside a transaction, and tells
the generation loop whether to accept the candidate, regenerate its inserts,
regenerate its schema, or discard it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ambigdb.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "run ledger directory (empty disables the ledger)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "", "log format: text or json")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log every located anchor at info level")

	bindFlag("store.data_dir", cmd.PersistentFlags().Lookup("data-dir"))
	bindFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	bindFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	bindFlag("validation.verbose", cmd.PersistentFlags().Lookup("verbose"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newIntrospectCmd())
	cmd.AddCommand(newSanitizeCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ambigdb")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.ambigdb")
	}

	viper.SetEnvPrefix("AMBIGDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
