package cheatcodes

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/chain/fork"
	"github.com/crytic/multifork/chain/state"
	"github.com/crytic/multifork/chain/types"
	"github.com/crytic/multifork/logging"
	"github.com/crytic/multifork/utils"
	"github.com/pkg/errors"
)

// RpcEndpoint is a configured endpoint alias along with its resolved URL.
type RpcEndpoint struct {
	Key string
	Url string
}

// EthGetLogs is a log record as returned to a test contract by eth_getLogs. Field order follows the ABI tuple.
type EthGetLogs struct {
	Emitter          common.Address
	Topics           [][32]byte
	Data             []byte
	BlockNumber      *big.Int
	TransactionHash  [32]byte
	TransactionIndex *big.Int
	BlockHash        [32]byte
	LogIndex         *big.Int
	Removed          bool
}

/*
ForkCheatcodes is the fork-related cheatcode surface exposed to test contracts. Each method corresponds to one
cheatcode. Integer inputs are uint256 values at the ABI boundary: fork ids that do not fit in 64 bits are reported as
UnknownForkId, block numbers that do not fit are reported as RangeTooLarge. Every error is a *types.ForkError.
*/
type ForkCheatcodes interface {
	// CreateFork creates a fork of an alias or URL at block, or at the chain tip if block is nil.
	CreateFork(endpoint string, block *big.Int) (*big.Int, error)
	// CreateForkAtTransaction creates a fork of an alias or URL immediately before txHash.
	CreateForkAtTransaction(endpoint string, txHash common.Hash) (*big.Int, error)
	// CreateSelectFork creates a fork and selects it.
	CreateSelectFork(endpoint string, block *big.Int) (*big.Int, error)
	// CreateSelectForkAtTransaction creates a fork immediately before txHash and selects it.
	CreateSelectForkAtTransaction(endpoint string, txHash common.Hash) (*big.Int, error)
	// SelectFork selects an existing fork.
	SelectFork(forkId *big.Int) error
	// RollFork re-anchors a fork, or the active one if forkId is nil, at block.
	RollFork(forkId *big.Int, block *big.Int) error
	// RollForkToTransaction re-anchors a fork, or the active one if forkId is nil, immediately before txHash.
	RollForkToTransaction(forkId *big.Int, txHash common.Hash) error
	// ActiveFork returns the id of the active fork.
	ActiveFork() (*big.Int, error)

	MakePersistent(addrs ...common.Address)
	IsPersistent(addr common.Address) bool
	RevokePersistent(addrs ...common.Address)

	// RpcUrl resolves an alias to its URL.
	RpcUrl(alias string) (string, error)
	// RpcUrls returns every configured alias and its URL as pairs.
	RpcUrls() ([][2]string, error)
	// RpcUrlStructs returns every configured alias and its URL.
	RpcUrlStructs() ([]RpcEndpoint, error)

	// AllowCheatcodes grants addr access to cheatcodes.
	AllowCheatcodes(addr common.Address)
	// Transact executes a historical transaction on a fork, or on the active one if forkId is nil.
	Transact(forkId *big.Int, txHash common.Hash) error
	// EthGetLogs queries the logs of the active fork's endpoint.
	EthGetLogs(fromBlock *big.Int, toBlock *big.Int, target common.Address, topics []common.Hash) ([]EthGetLogs, error)
	// Rpc performs a JSON-RPC call against the active fork's endpoint and returns the JSON result.
	Rpc(method string, params string) ([]byte, error)
}

// registryCheatcodes implements ForkCheatcodes on top of a fork registry.
type registryCheatcodes struct {
	registry *fork.Registry
	logger   *logging.Logger
}

// NewForkCheatcodes returns the fork cheatcodes backed by registry.
func NewForkCheatcodes(registry *fork.Registry) ForkCheatcodes {
	return &registryCheatcodes{
		registry: registry,
		logger:   logging.GlobalLogger.NewSubLogger("module", logging.CHEATCODE_SERVICE),
	}
}

// forkIdFromBig converts a boundary fork id. Ids beyond 64 bits were never issued.
func forkIdFromBig(id *big.Int) (fork.ForkId, error) {
	if id == nil || id.Sign() < 0 || !id.IsUint64() {
		return 0, types.NewForkError(types.ErrCodeUnknownForkId, errors.Errorf("fork %v does not exist", id))
	}
	return fork.ForkId(id.Uint64()), nil
}

// optionalForkId converts a boundary fork id that defaults to the active fork when nil.
func optionalForkId(id *big.Int) (*fork.ForkId, error) {
	if id == nil {
		return nil, nil
	}
	forkId, err := forkIdFromBig(id)
	if err != nil {
		return nil, err
	}
	return &forkId, nil
}

// blockAnchor converts a boundary block number into an anchor. A nil block anchors at the chain tip.
func blockAnchor(block *big.Int) (fork.Anchor, error) {
	if block == nil {
		return fork.LatestAnchor(), nil
	}
	height, err := state.ValidateBlockBound(block)
	if err != nil {
		return fork.Anchor{}, err
	}
	return fork.BlockAnchor(height), nil
}

func forkIdToBig(id fork.ForkId) *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

func (c *registryCheatcodes) CreateFork(endpoint string, block *big.Int) (*big.Int, error) {
	anchor, err := blockAnchor(block)
	if err != nil {
		return nil, err
	}
	id, err := c.registry.CreateFork(endpoint, anchor)
	if err != nil {
		return nil, err
	}
	return forkIdToBig(id), nil
}

func (c *registryCheatcodes) CreateForkAtTransaction(endpoint string, txHash common.Hash) (*big.Int, error) {
	id, err := c.registry.CreateForkAtTransaction(endpoint, txHash)
	if err != nil {
		return nil, err
	}
	return forkIdToBig(id), nil
}

func (c *registryCheatcodes) CreateSelectFork(endpoint string, block *big.Int) (*big.Int, error) {
	anchor, err := blockAnchor(block)
	if err != nil {
		return nil, err
	}
	id, err := c.registry.CreateSelectFork(endpoint, anchor)
	if err != nil {
		return nil, err
	}
	return forkIdToBig(id), nil
}

func (c *registryCheatcodes) CreateSelectForkAtTransaction(endpoint string, txHash common.Hash) (*big.Int, error) {
	id, err := c.registry.CreateSelectForkAtTransaction(endpoint, txHash)
	if err != nil {
		return nil, err
	}
	return forkIdToBig(id), nil
}

func (c *registryCheatcodes) SelectFork(forkId *big.Int) error {
	// Broadcast mode takes precedence over the fork id
	if c.registry.Broadcasting() {
		return types.NewForkError(types.ErrCodeSelectForkDuringBroadcast, nil)
	}
	id, err := forkIdFromBig(forkId)
	if err != nil {
		return err
	}
	return c.registry.SelectFork(id)
}

func (c *registryCheatcodes) RollFork(forkId *big.Int, block *big.Int) error {
	id, err := optionalForkId(forkId)
	if err != nil {
		return err
	}
	height, err := state.ValidateBlockBound(block)
	if err != nil {
		return err
	}
	return c.registry.RollFork(id, fork.BlockAnchor(height))
}

func (c *registryCheatcodes) RollForkToTransaction(forkId *big.Int, txHash common.Hash) error {
	id, err := optionalForkId(forkId)
	if err != nil {
		return err
	}
	return c.registry.RollForkToTransaction(id, txHash)
}

func (c *registryCheatcodes) ActiveFork() (*big.Int, error) {
	id, ok := c.registry.ActiveForkId()
	if !ok {
		return nil, types.NewForkError(types.ErrCodeNoActiveFork, nil)
	}
	return forkIdToBig(id), nil
}

func (c *registryCheatcodes) MakePersistent(addrs ...common.Address) {
	c.registry.MakePersistent(addrs...)
}

func (c *registryCheatcodes) IsPersistent(addr common.Address) bool {
	return c.registry.IsPersistent(addr)
}

func (c *registryCheatcodes) RevokePersistent(addrs ...common.Address) {
	c.registry.RevokePersistent(addrs...)
}

func (c *registryCheatcodes) RpcUrl(alias string) (string, error) {
	return c.registry.Config().GetRpcUrl(alias)
}

func (c *registryCheatcodes) RpcUrls() ([][2]string, error) {
	endpoints, err := c.registry.Config().RpcEndpointList()
	if err != nil {
		return nil, err
	}
	return utils.SliceSelect(endpoints, func(endpoint config.RpcEndpoint) [2]string {
		return [2]string{endpoint.Alias, endpoint.Url}
	}), nil
}

func (c *registryCheatcodes) RpcUrlStructs() ([]RpcEndpoint, error) {
	endpoints, err := c.registry.Config().RpcEndpointList()
	if err != nil {
		return nil, err
	}
	return toRpcEndpoints(endpoints), nil
}

func toRpcEndpoints(endpoints []config.RpcEndpoint) []RpcEndpoint {
	return utils.SliceSelect(endpoints, func(endpoint config.RpcEndpoint) RpcEndpoint {
		return RpcEndpoint{Key: endpoint.Alias, Url: endpoint.Url}
	})
}

func (c *registryCheatcodes) AllowCheatcodes(addr common.Address) {
	c.logger.Debug("Allowing cheatcode access for ", addr.Hex())
	c.registry.AllowPrivilegedAccess(addr)
}

func (c *registryCheatcodes) Transact(forkId *big.Int, txHash common.Hash) error {
	id, err := optionalForkId(forkId)
	if err != nil {
		return err
	}
	return c.registry.Transact(txHash, id)
}

func (c *registryCheatcodes) EthGetLogs(fromBlock *big.Int, toBlock *big.Int, target common.Address, topics []common.Hash) ([]EthGetLogs, error) {
	logs, err := c.registry.GetLogs(state.LogQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Address:   target,
		Topics:    topics,
	})
	if err != nil {
		return nil, err
	}

	records := make([]EthGetLogs, 0, len(logs))
	for _, log := range logs {
		logTopics := utils.SliceSelect(log.Topics, func(topic common.Hash) [32]byte { return topic })
		records = append(records, EthGetLogs{
			Emitter:          log.Address,
			Topics:           logTopics,
			Data:             log.Data,
			BlockNumber:      new(big.Int).SetUint64(log.BlockNumber),
			TransactionHash:  log.TransactionHash,
			TransactionIndex: new(big.Int).SetUint64(log.TransactionIndex),
			BlockHash:        log.BlockHash,
			LogIndex:         new(big.Int).SetUint64(log.LogIndex),
			Removed:          log.Removed,
		})
	}
	return records, nil
}

func (c *registryCheatcodes) Rpc(method string, params string) ([]byte, error) {
	return c.registry.RawCall(method, params)
}
