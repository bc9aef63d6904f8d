package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/crytic/multifork/logging"
	"github.com/crytic/multifork/logging/colors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cmdLogger is the logger used by every command. It is rebuilt once the persistent flags are parsed.
var cmdLogger = logging.NewLogger(zerolog.InfoLevel, true).NewSubLogger("module", logging.CLI_SERVICE)

// logHistory retains the log lines of a --quiet run so they can be shown if the command fails.
var logHistory *logging.LogBufferWriter

// logHistoryCapacity is the amount of log lines retained by logHistory.
const logHistoryCapacity = 500

var rootCmd = &cobra.Command{
	Use:   "multifork",
	Short: "Inspect remote chains through multi-fork EVM state",
	Long: "multifork creates forks of remote chains from a JSON configuration of RPC endpoints and queries their " +
		"state, logs and historical transactions",
	PersistentPreRunE: cmdSetupLogging,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the forking configuration file")
	rootCmd.PersistentFlags().String("log-level", zerolog.InfoLevel.String(), "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only print logs if the command fails")
}

// cmdSetupLogging configures the global logger from the persistent flags before any command runs.
func cmdSetupLogging(cmd *cobra.Command, args []string) error {
	levelStr, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", levelStr)
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}
	if noColor {
		colors.DisableColor()
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}

	logging.GlobalLogger = logging.NewLogger(level, !quiet)
	logHistory = nil
	if quiet {
		logHistory = logging.NewLogBufferWriter(logHistoryCapacity)
		logging.GlobalLogger.AddWriter(logHistory, logging.UNSTRUCTURED)
	}
	cmdLogger = logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
	return nil
}

// Execute runs the root command. Interrupts cancel the context handed to every command, which aborts in-flight RPC
// requests.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		dumpLogHistory(os.Stderr)
	}
	return err
}

// dumpLogHistory writes the log lines retained during a --quiet run to w.
func dumpLogHistory(w io.Writer) {
	if logHistory == nil || logHistory.Count() == 0 {
		return
	}
	fmt.Fprintln(w, "Command failed. Log history:")
	fmt.Fprintln(w, strings.Repeat("─", 80))
	for _, entry := range logHistory.Entries() {
		fmt.Fprintf(w, "[%s] %s", entry.Timestamp.Format("15:04:05"), entry.Message)
		if !strings.HasSuffix(entry.Message, "\n") {
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w, strings.Repeat("─", 80))
}
