package cmd

import (
	"bytes"
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/chain/state/rpc"
	"github.com/crytic/multifork/utils/testutils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	contract = common.HexToAddress("0x0000000000000000000000000000000000c0ffee")
	slotOne  = common.HexToHash("0x01")

	// oneAndAHalfEther is 1.5 ether in wei.
	oneAndAHalfEther, _ = new(big.Int).SetString("1500000000000000000", 10)
)

/*
newTestNode creates a fake node with blocks 100 and 101. Alice holds 1.5 ether at block 100 and sends the only
transaction of block 101, which costs her 0.1 ether and bumps slot one of the contract. The transaction hash is
returned.
*/
func newTestNode(t *testing.T) (*testutils.FakeNode, common.Hash) {
	node := testutils.NewFakeNode(1)
	t.Cleanup(node.Close)

	node.AddBlock(testutils.FakeBlock{Number: 100, Timestamp: 1_700_000_000, GasLimit: 30_000_000})
	node.AddBlock(testutils.FakeBlock{Number: 101, Timestamp: 1_700_000_012, GasLimit: 30_000_000})
	node.SetAccount(100, alice, testutils.FakeAccount{Balance: oneAndAHalfEther, Nonce: 3})
	node.SetAccount(100, contract, testutils.FakeAccount{
		Code:    []byte{0x60, 0x00, 0x56},
		Storage: map[common.Hash]common.Hash{slotOne: common.HexToHash("0x2a")},
	})

	txHash := node.AddTransaction(testutils.FakeTransaction{
		From:        alice,
		To:          &contract,
		Nonce:       3,
		Gas:         100_000,
		BlockNumber: 101,
	})
	spent := new(big.Int).Sub(oneAndAHalfEther, big.NewInt(100_000_000_000_000_000))
	node.SetStateDiff(txHash, testutils.StateDiff{
		Pre: map[common.Address]testutils.PrestateAccount{
			alice:    {Balance: (*hexutil.Big)(oneAndAHalfEther), Nonce: 3},
			contract: {Storage: map[common.Hash]common.Hash{slotOne: common.HexToHash("0x2a")}},
		},
		Post: map[common.Address]testutils.PrestateAccount{
			alice:    {Balance: (*hexutil.Big)(spent), Nonce: 4},
			contract: {Storage: map[common.Hash]common.Hash{slotOne: common.HexToHash("0x2b")}},
		},
	})
	return node, txHash
}

// useTestNode routes every endpoint dialed by the commands to node for the duration of the test.
func useTestNode(t *testing.T, node *testutils.FakeNode) {
	previous := gatewayDialer
	gatewayDialer = func(endpoint string, poolSize uint) (*rpc.ClientPool, error) {
		return rpc.NewClientPoolFromClients(endpoint, node.Dial()), nil
	}
	t.Cleanup(func() { gatewayDialer = previous })
}

// writeTestConfig writes a forking configuration with the "mainnet" alias and caching disabled, after applying
// update. Returns the path of the file.
func writeTestConfig(t *testing.T, update func(forkingConfig *config.ForkingConfig)) string {
	forkingConfig, err := config.DefaultForkingConfig()
	require.NoError(t, err)
	forkingConfig.RpcStorageCaching.Enabled = false
	forkingConfig.RpcEndpoints["mainnet"] = "http://mainnet.fake-node.test:8545"
	if update != nil {
		update(forkingConfig)
	}

	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, forkingConfig.WriteToFile(path))
	return path
}

// executeCommand runs the root command with args and returns what it wrote to its output. Flags are reset first as
// the command tree is shared between tests.
func executeCommand(t *testing.T, input string, args ...string) (string, error) {
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append(args, "--no-color"))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default value.
func resetFlags(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		if sliceValue, ok := flag.Value.(pflag.SliceValue); ok {
			_ = sliceValue.Replace(nil)
		} else {
			_ = flag.Value.Set(flag.DefValue)
		}
		flag.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}
