// Command console renders and plays sessions described in YAML.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudk/console/log"
)

const (
	successExitCode = 0
	errorExitCode   = 1
)

// app holds flags shared by all commands.
type app struct {
	verbose bool
	logger  *logrus.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{logger: log.GetLogger()}
	root := &cobra.Command{
		Use:           "console",
		Short:         "Console is a real-time signal routing engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger.SetOutput(cmd.ErrOrStderr())
			if a.verbose {
				a.logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(
		a.renderCommand(),
		a.playCommand(),
		a.devicesCommand(),
		a.inspectCommand(),
	)
	return root
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Command failed: %v\n", err)
		return errorExitCode
	}
	return successExitCode
}

func main() {
	os.Exit(run(os.Args[1:]))
}
