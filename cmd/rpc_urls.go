package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rpcUrlsCmd represents the command provider for rpc-urls
var rpcUrlsCmd = &cobra.Command{
	Use:           "rpc-urls",
	Short:         "Lists the configured RPC endpoints",
	Long:          `Lists the configured RPC endpoint aliases along with their URLs, with environment variables resolved`,
	Args:          cobra.NoArgs,
	RunE:          cmdRunRpcUrls,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(rpcUrlsCmd)
}

// cmdRunRpcUrls executes the rpc-urls CLI command
func cmdRunRpcUrls(cmd *cobra.Command, args []string) error {
	forkingConfig, err := readForkingConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the rpc-urls command", err)
		return err
	}

	endpoints, err := forkingConfig.RpcEndpointList()
	if err != nil {
		cmdLogger.Error("Failed to run the rpc-urls command", err)
		return err
	}
	if len(endpoints) == 0 {
		cmdLogger.Warn("No RPC endpoints are configured")
	}
	for _, endpoint := range endpoints {
		caching := ""
		if forkingConfig.RpcStorageCaching.EnableForEndpoint(endpoint.Url) {
			caching = " (cached)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s%s\n", endpoint.Alias, endpoint.Url, caching)
	}
	return nil
}
