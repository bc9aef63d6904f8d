package cmd

import (
	"fmt"
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/multifork/chain/state"
	"github.com/spf13/cobra"
)

// logsCmd represents the command provider for logs
var logsCmd = &cobra.Command{
	Use:           "logs",
	Short:         "Queries the logs emitted by a contract on a fork's endpoint",
	Long:          `Queries the logs emitted by a contract on a fork's endpoint, filtered by up to four topics`,
	Args:          cobra.NoArgs,
	RunE:          cmdRunLogs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addForkFlags(logsCmd, false)
	logsCmd.Flags().String("from", "0", "first block of the range")
	logsCmd.Flags().String("to", "", "last block of the range, defaults to the chain tip")
	logsCmd.Flags().String("address", "", "address of the emitting contract")
	logsCmd.Flags().StringSlice("topic", nil, "topic to filter on, may be repeated")
	_ = logsCmd.MarkFlagRequired("address")
	rootCmd.AddCommand(logsCmd)
}

// cmdRunLogs executes the logs CLI command
func cmdRunLogs(cmd *cobra.Command, args []string) error {
	query, err := logQueryFromFlags(cmd)
	if err != nil {
		return err
	}

	registry, err := newRegistry(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the logs command", err)
		return err
	}
	defer registry.Close()

	activeFork, err := selectForkFromFlags(cmd, registry)
	if err != nil {
		cmdLogger.Error("Failed to run the logs command", err)
		return err
	}
	if query.ToBlock == nil {
		query.ToBlock = new(big.Int).SetUint64(activeFork.Environment().BlockNumber)
	}

	logs, err := registry.GetLogs(query)
	if err != nil {
		return err
	}
	cmdLogger.Info("Found ", len(logs), " log(s)")
	for _, log := range logs {
		fmt.Fprintf(cmd.OutOrStdout(), "block %d tx %s log %d\n", log.BlockNumber, log.TransactionHash.Hex(), log.LogIndex)
		for i, topic := range log.Topics {
			fmt.Fprintf(cmd.OutOrStdout(), "  topic[%d] %s\n", i, topic.Hex())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  data     %s\n", hexutil.Encode(log.Data))
	}
	return nil
}

// logQueryFromFlags builds the log filter from the logs command flags.
func logQueryFromFlags(cmd *cobra.Command) (state.LogQuery, error) {
	var query state.LogQuery

	fromStr, err := cmd.Flags().GetString("from")
	if err != nil {
		return query, err
	}
	if query.FromBlock, err = parseBig(fromStr); err != nil {
		return query, err
	}

	toStr, err := cmd.Flags().GetString("to")
	if err != nil {
		return query, err
	}
	if toStr != "" {
		if query.ToBlock, err = parseBig(toStr); err != nil {
			return query, err
		}
	}

	addressStr, err := cmd.Flags().GetString("address")
	if err != nil {
		return query, err
	}
	if query.Address, err = parseAddress(addressStr); err != nil {
		return query, err
	}

	topicStrs, err := cmd.Flags().GetStringSlice("topic")
	if err != nil {
		return query, err
	}
	query.Topics = make([]common.Hash, 0, len(topicStrs))
	for _, topicStr := range topicStrs {
		topic, err := parseHash(topicStr)
		if err != nil {
			return query, err
		}
		query.Topics = append(query.Topics, topic)
	}
	return query, nil
}
