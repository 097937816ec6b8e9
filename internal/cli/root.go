package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/tandem/internal/config"
	"github.com/dshills/tandem/internal/conversation"
	"github.com/dshills/tandem/internal/github"
	"github.com/dshills/tandem/internal/llm"
)

const version = "0.1.0"

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
	ExitCancelled    = 5
)

// flagConfig overrides the config file location for every command.
var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "tandem",
	Short:         "Two-model AI code review CLI",
	Long:          "Tandem reviews code with a senior and a junior model that discuss the code until they agree or run out of rounds.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Run executes the root command and returns an exit code. SIGINT and SIGTERM
// cancel the running command.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	exitCode = ExitSuccess
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// exitCodeFor maps an error to the process exit code. Errors cobra returns
// for bad arguments and flags fall through to the usage code.
func exitCodeFor(err error) int {
	var cfgErr *config.Error
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, conversation.ErrCancelled), errors.Is(err, context.Canceled):
		return ExitCancelled
	case llm.IsAuth(err), errors.Is(err, github.ErrUnauthorized):
		return ExitAuthError
	case errors.As(err, &cfgErr):
		return ExitUsageError
	case isRuntime(err):
		return ExitRuntimeError
	default:
		return ExitUsageError
	}
}

// runtimeError marks failures that happen after the command line and config
// were accepted.
type runtimeError struct{ err error }

func (e runtimeError) Error() string { return e.err.Error() }
func (e runtimeError) Unwrap() error { return e.err }

func runtimeErr(err error) error {
	if err == nil {
		return nil
	}
	return runtimeError{err: err}
}

func isRuntime(err error) bool {
	var re runtimeError
	var ce *conversation.Error
	return errors.As(err, &re) || errors.As(err, &ce)
}

func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return config.ConfigPath()
}

func loadConfig(overrides map[string]string) (config.Config, error) {
	path, err := configPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadFrom(path, overrides)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print tandem version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tandem version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: $TANDEM_CONFIG or the user config directory)")
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)
}
