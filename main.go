// Command unrepair reverses the vendoring of shared libraries into Python
// wheel extension modules.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dropvendor/unrepair/pkg/cliutil"
)

var argparser = &cobra.Command{
	Use:   "unrepair {[flags]|SUBCOMMAND...}",
	Short: "Reverse wheel vendoring by repointing extension modules at system shared libraries",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,

	SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
	SilenceUsage:  true, // our FlagErrorFunc will handle it
}

func init() {
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logLevelFromEnv())
	ctx := dlog.WithLogger(context.Background(), dlog.WrapLogrus(logger))

	if err := argparser.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(argparser.ErrOrStderr(), "%s: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}

// logLevelFromEnv reads UNREPAIR_LOG_LEVEL ("panic"/"fatal"/"error"/"warn"/
// "info"/"debug"/"trace", per logrus.ParseLevel), defaulting to "info" when
// unset or unparseable. This is the "standard log-level environment
// variable" spec.md §6 calls for.
func logLevelFromEnv() logrus.Level {
	if raw := os.Getenv("UNREPAIR_LOG_LEVEL"); raw != "" {
		if lvl, err := logrus.ParseLevel(raw); err == nil {
			return lvl
		}
	}
	return logrus.InfoLevel
}
