package fork

import (
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/state"
	"github.com/crytic/multifork/chain/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateForkSameAnchor verifies forks of the same endpoint and block get distinct ids but answer identically.
func TestCreateForkSameAnchor(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	_, active := registry.ActiveForkId()
	assert.False(t, active)

	first := createFork(t, registry, 100)
	second, err := registry.CreateFork(mainnetUrl, BlockAnchor(100))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []ForkId{first, second}, registry.Forks())

	// Creation does not select
	_, active = registry.ActiveForkId()
	assert.False(t, active)

	var balances []uint64
	var values []common.Hash
	for _, id := range []ForkId{first, second} {
		selectFork(t, registry, id)
		balances = append(balances, balanceOf(t, registry, alice))
		values = append(values, storageOf(t, registry, contract, slotOne))
	}
	assert.Equal(t, []uint64{1000, 1000}, balances)
	assert.Equal(t, []common.Hash{common.HexToHash("0x2a"), common.HexToHash("0x2a")}, values)

	// Both forks share the gateway of the endpoint and its per-height cache
	fork, err := registry.Fork(first)
	require.NoError(t, err)
	assert.Equal(t, mainnetUrl, fork.Endpoint())
	assert.False(t, fork.CachingEnabled())
	assert.Equal(t, 1, node.Calls("eth_getBalance"))
	assert.Equal(t, 1, node.Calls("eth_getStorageAt"))
}

// TestCreateForkLatest verifies a fork without a block is anchored at the endpoint's chain tip.
func TestCreateForkLatest(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	id, err := registry.CreateFork("optimism", LatestAnchor())
	require.NoError(t, err)

	fork, err := registry.Fork(id)
	require.NoError(t, err)
	assert.Equal(t, AnchorLatest, fork.Anchor().Kind)
	assert.EqualValues(t, 103, fork.Anchor().Block)
	assert.EqualValues(t, 103, fork.Environment().BlockNumber)
	assert.Equal(t, optimismUrl, fork.Endpoint())
}

// TestCreateForkConfigError verifies unresolvable aliases fail without registering a fork.
func TestCreateForkConfigError(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	_, err := registry.CreateFork("unknown-chain", LatestAnchor())
	assert.True(t, errors.Is(err, types.ErrConfig))
	_, err = registry.CreateSelectFork("unknown-chain", BlockAnchor(100))
	assert.True(t, errors.Is(err, types.ErrConfig))
	_, err = registry.CreateForkAtTransaction("unknown-chain", common.HexToHash("0x01"))
	assert.True(t, errors.Is(err, types.ErrConfig))

	assert.Empty(t, registry.Forks())
	assert.Zero(t, node.TotalCalls())
}

// TestCreateForkRemoteError verifies blocks the endpoint does not know fail with a RemoteRpcError.
func TestCreateForkRemoteError(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	_, err := registry.CreateFork("mainnet", BlockAnchor(5000))
	assert.Equal(t, types.ErrCodeRemoteRpc, types.CodeOf(err))
	assert.Empty(t, registry.Forks())
}

// TestSelectFork verifies selection changes the active fork and mirrors its environment into the shared one.
func TestSelectFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	first := createFork(t, registry, 100)
	second := createFork(t, registry, 101)

	selectFork(t, registry, second)
	id, ok := registry.ActiveForkId()
	assert.True(t, ok)
	assert.Equal(t, second, id)
	url, ok := registry.ActiveForkUrl()
	assert.True(t, ok)
	assert.Equal(t, mainnetUrl, url)

	environment := registry.Environment()
	assert.EqualValues(t, 1, environment.ChainId)
	assert.EqualValues(t, 101, environment.BlockNumber)
	assert.EqualValues(t, 1_700_000_012, environment.Timestamp)
	assert.EqualValues(t, 101, environment.BaseFee.Uint64())
	assert.Equal(t, common.BigToAddress(big.NewInt(101)), environment.Coinbase)

	selectFork(t, registry, first)
	assert.EqualValues(t, 100, registry.Environment().BlockNumber)

	// The shared environment is a copy that the EVM may mutate
	registry.Environment().BaseFee.SetUint64(1)
	fork, err := registry.Fork(first)
	require.NoError(t, err)
	assert.EqualValues(t, 100, fork.Environment().BaseFee.Uint64())

	err = registry.SelectFork(42)
	assert.True(t, errors.Is(err, types.ErrUnknownForkId))
	id, _ = registry.ActiveForkId()
	assert.Equal(t, first, id)
}

// TestSelectForkDuringBroadcast verifies fork switches are rejected while broadcasting and leave the active fork as is.
func TestSelectForkDuringBroadcast(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	first, err := registry.CreateSelectFork("mainnet", BlockAnchor(100))
	require.NoError(t, err)
	second := createFork(t, registry, 101)

	registry.SetBroadcastMode(true)
	assert.True(t, registry.Broadcasting())

	err = registry.SelectFork(second)
	assert.True(t, errors.Is(err, types.ErrSelectForkDuringBroadcast))
	id, _ := registry.ActiveForkId()
	assert.Equal(t, first, id)

	// Broadcast mode is checked before the fork id
	err = registry.SelectFork(42)
	assert.True(t, errors.Is(err, types.ErrSelectForkDuringBroadcast))

	// Create and select is all or nothing
	_, err = registry.CreateSelectFork("mainnet", BlockAnchor(101))
	assert.True(t, errors.Is(err, types.ErrSelectForkDuringBroadcast))
	assert.Len(t, registry.Forks(), 2)

	// Forks can still be created without being selected
	_, err = registry.CreateFork("mainnet", BlockAnchor(101))
	assert.NoError(t, err)

	registry.SetBroadcastMode(false)
	assert.NoError(t, registry.SelectFork(second))
}

// TestRollFork verifies re-anchoring keeps the fork id and persistent accounts while discarding local writes.
func TestRollFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	id, err := registry.CreateSelectFork("mainnet", BlockAnchor(100))
	require.NoError(t, err)
	registry.SetState(contract, slotTwo, common.HexToHash("0xff"))
	registry.SetBalance(bob, u256(77))
	registry.MakePersistent(bob)

	require.NoError(t, registry.RollFork(nil, BlockAnchor(101)))

	active, _ := registry.ActiveForkId()
	assert.Equal(t, id, active)
	assert.Equal(t, []ForkId{id}, registry.Forks())
	assert.EqualValues(t, 101, registry.Environment().BlockNumber)

	assert.EqualValues(t, 2000, balanceOf(t, registry, alice))
	assert.Equal(t, common.HexToHash("0x2b"), storageOf(t, registry, contract, slotOne))
	assert.Equal(t, common.Hash{}, storageOf(t, registry, contract, slotTwo))

	assert.True(t, registry.IsPersistent(bob))
	assert.EqualValues(t, 77, balanceOf(t, registry, bob))
}

// TestRollInactiveFork verifies rolling a fork that is not active leaves the shared environment untouched.
func TestRollInactiveFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	first := createFork(t, registry, 100)
	second := createFork(t, registry, 100)
	selectFork(t, registry, first)

	require.NoError(t, registry.RollFork(&second, BlockAnchor(101)))
	assert.EqualValues(t, 100, registry.Environment().BlockNumber)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))

	selectFork(t, registry, second)
	assert.EqualValues(t, 101, registry.Environment().BlockNumber)
	assert.EqualValues(t, 2000, balanceOf(t, registry, alice))

	unknown := ForkId(42)
	err := registry.RollFork(&unknown, BlockAnchor(101))
	assert.True(t, errors.Is(err, types.ErrUnknownForkId))
}

// TestOperationsWithoutActiveFork verifies operations targeting the active fork fail with NoActiveFork.
func TestOperationsWithoutActiveFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	createFork(t, registry, 100)

	_, err := registry.ActiveFork()
	assert.True(t, errors.Is(err, types.ErrNoActiveFork))
	_, ok := registry.ActiveForkUrl()
	assert.False(t, ok)

	err = registry.RollFork(nil, BlockAnchor(101))
	assert.True(t, errors.Is(err, types.ErrNoActiveFork))
	err = registry.Transact(common.HexToHash("0x01"), nil)
	assert.True(t, errors.Is(err, types.ErrNoActiveFork))
	_, err = registry.GetLogs(state.LogQuery{FromBlock: big.NewInt(0), ToBlock: big.NewInt(1)})
	assert.True(t, errors.Is(err, types.ErrNoActiveFork))
	_, err = registry.RawCall("eth_blockNumber", "")
	assert.True(t, errors.Is(err, types.ErrNoActiveFork))
}

// TestStateWithoutActiveFork verifies state accessed before any fork is selected is purely local.
func TestStateWithoutActiveFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)

	assert.Zero(t, balanceOf(t, registry, alice))
	assert.Equal(t, common.Hash{}, storageOf(t, registry, contract, slotOne))

	registry.SetBalance(alice, u256(5))
	registry.SetNonce(alice, 9)
	registry.SetCode(contract, contractCode)
	assert.EqualValues(t, 5, balanceOf(t, registry, alice))
	nonce, err := registry.GetNonce(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 9, nonce)
	code, err := registry.GetCode(contract)
	require.NoError(t, err)
	assert.Equal(t, contractCode, code)
	assert.Zero(t, node.TotalCalls())

	// Local state is not visible to forks
	createFork(t, registry, 100)
	selectFork(t, registry, 0)
	assert.EqualValues(t, 1000, balanceOf(t, registry, alice))
}

// TestLogsAndRawCallsOnActiveFork verifies passthrough queries target the active fork's endpoint.
func TestLogsAndRawCallsOnActiveFork(t *testing.T) {
	node := newTestNode(t)
	registry := newTestRegistry(t, node)
	_, err := registry.CreateSelectFork("mainnet", BlockAnchor(100))
	require.NoError(t, err)

	logs, err := registry.GetLogs(state.LogQuery{FromBlock: big.NewInt(100), ToBlock: big.NewInt(101), Address: contract})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)

	_, err = registry.GetLogs(state.LogQuery{
		FromBlock: big.NewInt(100),
		ToBlock:   big.NewInt(101),
		Topics:    make([]common.Hash, 5),
	})
	assert.True(t, errors.Is(err, types.ErrTooManyTopics))

	tooLarge := new(big.Int).Lsh(big.NewInt(1), 64)
	_, err = registry.GetLogs(state.LogQuery{FromBlock: big.NewInt(100), ToBlock: tooLarge})
	assert.True(t, errors.Is(err, types.ErrRangeTooLarge))
	assert.Equal(t, 1, node.Calls("eth_getLogs"))

	result, err := registry.RawCall("web3_clientVersion", "[]")
	require.NoError(t, err)
	assert.JSONEq(t, `"FakeNode/v1.0.0"`, string(result))

	_, err = registry.RawCall("web3_clientVersion", "[")
	assert.True(t, errors.Is(err, types.ErrSerialization))
	_, err = registry.RawCall("eth_unknownMethod", "[]")
	assert.True(t, errors.Is(err, types.ErrRemoteRpc))
}

// TestPrivilegedAccess verifies the registry records addresses allowed to use cheatcodes.
func TestPrivilegedAccess(t *testing.T) {
	registry := newTestRegistry(t, newTestNode(t))

	assert.False(t, registry.HasPrivilegedAccess(alice))
	registry.AllowPrivilegedAccess(alice)
	registry.AllowPrivilegedAccess(alice)
	assert.True(t, registry.HasPrivilegedAccess(alice))
	assert.False(t, registry.HasPrivilegedAccess(bob))
}
