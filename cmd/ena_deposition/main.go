package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// EnvConfig names the environment variable holding the default config path.
const EnvConfig = "ENA_DEPOSITION_CONFIG"

// GlobalFlags are flags shared by every subcommand.
type GlobalFlags struct {
	Config   string
	LogLevel string
}

// LogLevelOr returns the log level given by the flag, or fallback.
func (g *GlobalFlags) LogLevelOr(fallback string) string {
	if g.LogLevel != "" {
		return g.LogLevel
	}
	return fallback
}

func RootCmd() *cobra.Command {
	g := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "ena-deposition",
		Short: "Deposit released sequences to ENA, and report accessions back to Loculus",
		Long: `ena-deposition submits projects, samples and genome assemblies of released
sequence entries to the European Nucleotide Archive, tracks their progress in a
database, and sends the assigned accessions back to Loculus.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(
		&g.Config, "config", os.Getenv(EnvConfig), "path to config file (default: $"+EnvConfig+")",
	)
	root.PersistentFlags().StringVar(
		&g.LogLevel, "loglevel", "", "log level. debug|info|warn|error|off (default: as config says)",
	)

	root.AddCommand(RunCmd(g))
	root.AddCommand(SchemaCmd(g))
	root.AddCommand(StatusCmd(g))
	root.AddCommand(IntakeCmd(g))
	return root
}

func main() {
	err := RootCmd().ExecuteContext(context.Background())
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, ErrRestart) {
		// conventional "temporary failure": supervisors restart us.
		os.Exit(75)
	}
	os.Exit(1)
}
