package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ctxguard/ctxguard/cmd/ctxguard/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)

	if err != nil {
		var cliErr *cli.Error
		switch {
		case errors.As(err, &cliErr):
			fmt.Fprintln(rootCmd.OutOrStderr(), cliErr.Error())
			cancel()
			os.Exit(cliErr.Code)
		case strings.Contains(err.Error(), "unknown command") || strings.Contains(err.Error(), "unknown flag"):
			showSuggestion(rootCmd, err)
			cancel()
			os.Exit(cli.ExitBadArgument)
		default:
			fmt.Fprintln(rootCmd.OutOrStderr(), err)
			cancel()
			os.Exit(cli.ExitGenericFailure)
		}
	}
	cancel()
}

func showSuggestion(cmd *cobra.Command, err error) {
	fmt.Fprint(cmd.OutOrStderr(), cmd.UsageString())
	fmt.Fprintf(cmd.OutOrStderr(), "\nError: Invalid usage: %v\n", err)
}
