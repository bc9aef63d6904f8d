package cmd

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/chain/fork"
	"github.com/crytic/multifork/chain/state"
	"github.com/crytic/multifork/chain/state/rpc"
	"github.com/crytic/multifork/logging/colors"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// gatewayDialer connects the registry built by commands to RPC endpoints.
var gatewayDialer state.Dialer = rpc.NewClientPool

// readForkingConfig navigates through the following possibilities:
// #1: We will search for either a custom config file (via --config) or the default (multifork.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If multifork.json can't be found, use the default forking configuration.
func readForkingConfig(cmd *cobra.Command) (*config.ForkingConfig, error) {
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `multifork.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, DefaultConfigFilename)
	}

	_, existenceError := os.Stat(configPath)

	var forkingConfig *config.ForkingConfig
	switch {
	case existenceError == nil:
		// Possibility #1: File was found
		cmdLogger.Debug("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		forkingConfig, err = config.ReadForkingConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	case configFlagUsed:
		// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
		return nil, errors.WithStack(existenceError)
	default:
		// Possibility #3: --config flag was not used and multifork.json was not found
		cmdLogger.Debug("Unable to find the config file at ", configPath, ", using the default forking configuration")
		forkingConfig, err = config.DefaultForkingConfig()
		if err != nil {
			return nil, err
		}
	}

	if err = forkingConfig.Validate(); err != nil {
		return nil, err
	}
	return forkingConfig, nil
}

// newRegistry reads the forking configuration and creates a fork registry over it. The caller must close the registry.
func newRegistry(cmd *cobra.Command) (*fork.Registry, error) {
	forkingConfig, err := readForkingConfig(cmd)
	if err != nil {
		return nil, err
	}
	gateways := state.NewGatewaysWithDialer(cmd.Context(), forkingConfig, gatewayDialer)
	registry := fork.NewRegistry(forkingConfig, gateways, nil)
	registry.Events.ForkCreated.Subscribe(func(event fork.ForkCreatedEvent) {
		cmdLogger.Debug("Created fork ", event.Fork.Id(), " of ", event.Fork.Endpoint(),
			" (remote caching: ", event.Fork.CachingEnabled(), ")")
	})
	return registry, nil
}

// addForkFlags adds the flags selecting the endpoint and anchor of the fork a command runs against.
func addForkFlags(cmd *cobra.Command, withAnchor bool) {
	cmd.Flags().StringP("fork", "f", "", "endpoint alias or RPC URL to fork")
	_ = cmd.MarkFlagRequired("fork")
	if withAnchor {
		cmd.Flags().StringP("block", "b", "latest", "block number, transaction hash, or \"latest\" to fork at")
	}
}

// selectForkFromFlags creates a fork from the --fork and --block flags and selects it.
func selectForkFromFlags(cmd *cobra.Command, registry *fork.Registry) (*fork.Fork, error) {
	endpoint, err := cmd.Flags().GetString("fork")
	if err != nil {
		return nil, err
	}

	anchor := fork.LatestAnchor()
	if cmd.Flags().Lookup("block") != nil {
		anchorStr, err := cmd.Flags().GetString("block")
		if err != nil {
			return nil, err
		}
		anchor, err = parseAnchor(anchorStr)
		if err != nil {
			return nil, err
		}
	}

	if _, err = registry.CreateSelectFork(endpoint, anchor); err != nil {
		return nil, err
	}
	activeFork, err := registry.ActiveFork()
	if err != nil {
		return nil, err
	}
	cmdLogger.Info("Forked ", colors.Bold, endpoint, colors.Reset, " at ", activeFork.Anchor())
	return activeFork, nil
}

// parseAnchor parses "latest", a decimal or hex block number, or a transaction hash.
func parseAnchor(value string) (fork.Anchor, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "latest") {
		return fork.LatestAnchor(), nil
	}
	if isHexHash(value) {
		return fork.TransactionAnchor(common.HexToHash(value)), nil
	}

	block, err := parseBig(value)
	if err != nil {
		return fork.Anchor{}, err
	}
	height, err := state.ValidateBlockBound(block)
	if err != nil {
		return fork.Anchor{}, err
	}
	return fork.BlockAnchor(height), nil
}

// parseBig parses a decimal or 0x-prefixed hex integer.
func parseBig(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 0)
	if !ok {
		return nil, errors.Errorf("invalid number %q", value)
	}
	return parsed, nil
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(value), nil
}

// parseHash parses a 32 byte hex value. Shorter values are left padded, as storage slots usually are small integers.
func parseHash(value string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if trimmed == "" || len(trimmed) > 2*common.HashLength {
		return common.Hash{}, errors.Errorf("invalid 32 byte value %q", value)
	}
	if _, ok := new(big.Int).SetString(trimmed, 16); !ok {
		return common.Hash{}, errors.Errorf("invalid 32 byte value %q", value)
	}
	return common.HexToHash(trimmed), nil
}

func isHexHash(value string) bool {
	return len(value) == 2+2*common.HashLength && strings.HasPrefix(value, "0x")
}

// printField writes an aligned "name: value" line to the command's output.
func printField(cmd *cobra.Command, name string, value any) {
	fmt.Fprintf(cmd.OutOrStdout(), "%-12s %v\n", name+":", value)
}
