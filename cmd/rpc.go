package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rpcCmd represents the command provider for rpc
var rpcCmd = &cobra.Command{
	Use:   "rpc <method> [params]",
	Short: "Performs a raw JSON-RPC call against a fork's endpoint",
	Long: `Performs a raw JSON-RPC call against a fork's endpoint and prints the JSON result.
params is a JSON document: an array is used as the parameter list, any other value as the single parameter.`,
	Args:          cobra.RangeArgs(1, 2),
	RunE:          cmdRunRpc,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addForkFlags(rpcCmd, false)
	rootCmd.AddCommand(rpcCmd)
}

// cmdRunRpc executes the rpc CLI command
func cmdRunRpc(cmd *cobra.Command, args []string) error {
	params := ""
	if len(args) == 2 {
		params = args[1]
	}

	registry, err := newRegistry(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the rpc command", err)
		return err
	}
	defer registry.Close()

	if _, err = selectForkFromFlags(cmd, registry); err != nil {
		cmdLogger.Error("Failed to run the rpc command", err)
		return err
	}

	result, err := registry.RawCall(args[0], params)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(result))
	return nil
}
