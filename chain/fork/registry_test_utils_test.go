package fork

import (
	"context"
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/chain/state"
	"github.com/crytic/multifork/chain/state/rpc"
	"github.com/crytic/multifork/utils/testutils"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const (
	mainnetUrl  = "http://mainnet.fake-node.test:8545"
	optimismUrl = "http://optimism.fake-node.test:8545"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	contract = common.HexToAddress("0x0000000000000000000000000000000000c0ffee")
	deployed = common.HexToAddress("0x000000000000000000000000000000000000d3e9")

	slotOne = common.HexToHash("0x01")
	slotTwo = common.HexToHash("0x02")

	contractCode = []byte{0x60, 0x00, 0x56}
)

/*
newTestNode creates a fake node whose chain state changes over blocks 100 to 103:
  - block 100: alice holds 1000 wei at nonce 3, contract slot one holds 0x2a.
  - block 101: alice holds 2000 wei at nonce 4, contract slot one holds 0x2b.
  - block 102 and 103 hold transactions added by the replay tests.

The head is at block 103.
*/
func newTestNode(t *testing.T) *testutils.FakeNode {
	node := testutils.NewFakeNode(1)
	t.Cleanup(node.Close)

	for number := uint64(100); number <= 103; number++ {
		node.AddBlock(testutils.FakeBlock{
			Number:    number,
			Timestamp: 1_700_000_000 + 12*(number-100),
			GasLimit:  30_000_000,
			BaseFee:   big.NewInt(int64(number)),
			Coinbase:  common.BigToAddress(new(big.Int).SetUint64(number)),
		})
	}
	node.SetAccount(100, alice, testutils.FakeAccount{Balance: big.NewInt(1000), Nonce: 3})
	node.SetAccount(101, alice, testutils.FakeAccount{Balance: big.NewInt(2000), Nonce: 4})
	node.SetAccount(100, contract, testutils.FakeAccount{
		Balance: big.NewInt(0),
		Nonce:   1,
		Code:    contractCode,
		Storage: map[common.Hash]common.Hash{slotOne: common.HexToHash("0x2a")},
	})
	node.SetAccount(101, contract, testutils.FakeAccount{
		Balance: big.NewInt(0),
		Nonce:   1,
		Code:    contractCode,
		Storage: map[common.Hash]common.Hash{slotOne: common.HexToHash("0x2b")},
	})
	return node
}

// newTestConfig returns a forking config with the "mainnet" and "optimism" aliases and on-disk caching disabled.
func newTestConfig(t *testing.T) *config.ForkingConfig {
	forkingConfig, err := config.DefaultForkingConfig()
	require.NoError(t, err)
	forkingConfig.RpcStorageCaching.Enabled = false
	forkingConfig.RpcEndpoints["mainnet"] = mainnetUrl
	forkingConfig.RpcEndpoints["optimism"] = optimismUrl
	return forkingConfig
}

// newTestRegistry creates a registry whose endpoints all connect to node.
func newTestRegistry(t *testing.T, node *testutils.FakeNode) *Registry {
	forkingConfig := newTestConfig(t)
	dialer := func(endpoint string, poolSize uint) (*rpc.ClientPool, error) {
		return rpc.NewClientPoolFromClients(endpoint, node.Dial(), node.Dial()), nil
	}
	gateways := state.NewGatewaysWithDialer(context.Background(), forkingConfig, dialer)

	registry := NewRegistry(forkingConfig, gateways, &Environment{})
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

// createFork creates a fork of the "mainnet" alias at block and fails the test on error.
func createFork(t *testing.T, registry *Registry, block uint64) ForkId {
	id, err := registry.CreateFork("mainnet", BlockAnchor(block))
	require.NoError(t, err)
	return id
}

// selectFork selects a fork and fails the test on error.
func selectFork(t *testing.T, registry *Registry, id ForkId) {
	require.NoError(t, registry.SelectFork(id))
}

// balanceOf reads the balance of addr on the active state and fails the test on error.
func balanceOf(t *testing.T, registry *Registry, addr common.Address) uint64 {
	balance, err := registry.GetBalance(addr)
	require.NoError(t, err)
	return balance.Uint64()
}

// storageOf reads a storage slot on the active state and fails the test on error.
func storageOf(t *testing.T, registry *Registry, addr common.Address, slot common.Hash) common.Hash {
	value, err := registry.GetState(addr, slot)
	require.NoError(t, err)
	return value
}

func u256(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}
