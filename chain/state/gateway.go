package state

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/multifork/chain/state/cache"
	"github.com/crytic/multifork/chain/state/rpc"
	forktypes "github.com/crytic/multifork/chain/types"
	"github.com/crytic/multifork/logging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

/*
Gateway is the remote data gateway of a single endpoint. It serves per-height state through RPCBackend instances and
endpoint-wide queries (blocks, transactions, logs, passthrough calls) directly. All methods block until the remote
answered. Requests are never retried.
*/
type Gateway struct {
	ctx        context.Context
	clientPool *rpc.ClientPool

	// cachingEnabled describes whether state fetched for a height is persisted to cacheDir.
	cachingEnabled bool
	cacheDir       string

	backends     map[uint64]*RPCBackend
	backendsLock sync.Mutex

	chainId    *uint64
	blockCache *lru.Cache[uint64, *Block]
	txCache    *lru.Cache[common.Hash, *Transaction]

	logger *logging.Logger
}

func newGateway(
	ctx context.Context,
	clientPool *rpc.ClientPool,
	cachingEnabled bool,
	cacheDir string,
	blockCacheSize int,
	logger *logging.Logger) (*Gateway, error) {
	if blockCacheSize <= 0 {
		blockCacheSize = 1
	}
	blockCache, err := lru.New[uint64, *Block](blockCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	txCache, err := lru.New[common.Hash, *Transaction](blockCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Gateway{
		ctx:            ctx,
		clientPool:     clientPool,
		cachingEnabled: cachingEnabled,
		cacheDir:       cacheDir,
		backends:       make(map[uint64]*RPCBackend),
		blockCache:     blockCache,
		txCache:        txCache,
		logger:         logger,
	}, nil
}

// Endpoint returns the URL of the endpoint this gateway talks to.
func (g *Gateway) Endpoint() string {
	return g.clientPool.Endpoint()
}

// CachingEnabled returns whether state fetched through this gateway is persisted to disk.
func (g *Gateway) CachingEnabled() bool {
	return g.cachingEnabled
}

// Backend returns the state backend pinned to height, creating it on first use. Backends, and the caches behind them,
// are shared by every caller asking for the same height.
func (g *Gateway) Backend(height uint64) *RPCBackend {
	g.backendsLock.Lock()
	defer g.backendsLock.Unlock()

	if backend, ok := g.backends[height]; ok {
		return backend
	}

	var stateCache cache.StateCache
	if g.cachingEnabled {
		persistent, err := cache.NewPersistentCache(g.ctx, g.cacheDir, g.Endpoint(), height)
		if err != nil {
			g.logger.Warn("Failed to open the on-disk cache, remote state will only be cached in memory", err)
			stateCache = cache.NewNonPersistentCache()
		} else {
			stateCache = persistent
		}
	} else {
		stateCache = cache.NewNonPersistentCache()
	}

	backend := newRPCBackend(g.ctx, g.clientPool, height, stateCache, g.logger)
	g.backends[height] = backend
	return backend
}

// ChainID returns the chain id reported by the endpoint. The value is fetched once.
func (g *Gateway) ChainID() (uint64, error) {
	if g.chainId != nil {
		return *g.chainId, nil
	}
	var result hexutil.Uint64
	if err := g.clientPool.ExecuteRequestBlocking(g.ctx, &result, "eth_chainId"); err != nil {
		return 0, remoteRpcError(err, "eth_chainId")
	}
	chainId := uint64(result)
	g.chainId = &chainId
	return chainId, nil
}

// LatestBlockNumber returns the current head of the endpoint.
func (g *Gateway) LatestBlockNumber() (uint64, error) {
	var result hexutil.Uint64
	if err := g.clientPool.ExecuteRequestBlocking(g.ctx, &result, "eth_blockNumber"); err != nil {
		return 0, remoteRpcError(err, "eth_blockNumber")
	}
	return uint64(result), nil
}

// BlockByNumber returns the header and transaction hashes of the block at number.
func (g *Gateway) BlockByNumber(number uint64) (*Block, error) {
	if block, ok := g.blockCache.Get(number); ok {
		return block, nil
	}

	g.logger.Trace("Fetching block ", number)
	var result *rpcBlock
	err := g.clientPool.ExecuteRequestBlocking(g.ctx, &result, "eth_getBlockByNumber", hexutil.Uint64(number), false)
	if err != nil {
		return nil, remoteRpcError(err, "eth_getBlockByNumber")
	}
	if result == nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Errorf("block %d not found", number))
	}
	if result.Number == nil || result.Hash == nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Errorf("block %d is pending", number))
	}

	block := result.toBlock()
	g.blockCache.Add(number, block)
	return block, nil
}

// TransactionByHash returns a mined transaction. Pending or unknown transactions are reported as RemoteRpcError.
func (g *Gateway) TransactionByHash(hash common.Hash) (*Transaction, error) {
	if tx, ok := g.txCache.Get(hash); ok {
		return tx, nil
	}

	g.logger.Trace("Fetching transaction ", hash.Hex())
	var raw json.RawMessage
	if err := g.clientPool.ExecuteRequestBlocking(g.ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, remoteRpcError(err, "eth_getTransactionByHash")
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Errorf("transaction %s not found", hash.Hex()))
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalJSON(raw); err != nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Wrapf(err, "invalid transaction %s", hash.Hex()))
	}
	var info rpcTransactionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Wrapf(err, "invalid transaction %s", hash.Hex()))
	}
	if info.BlockNumber == nil || info.BlockHash == nil || info.TransactionIndex == nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Errorf("transaction %s is not mined", hash.Hex()))
	}

	result := &Transaction{
		Tx:          tx,
		Hash:        hash,
		From:        info.From,
		BlockNumber: uint64(*info.BlockNumber),
		BlockHash:   *info.BlockHash,
		Index:       uint64(*info.TransactionIndex),
	}
	g.txCache.Add(hash, result)
	return result, nil
}

// TransactionStateDiff returns the accounts touched by a transaction, as reported by the endpoint's prestateTracer in
// diff mode.
func (g *Gateway) TransactionStateDiff(hash common.Hash) (*StateDiff, error) {
	tracerConfig := map[string]any{
		"tracer":       "prestateTracer",
		"tracerConfig": map[string]any{"diffMode": true},
	}
	var diff *StateDiff
	if err := g.clientPool.ExecuteRequestBlocking(g.ctx, &diff, "debug_traceTransaction", hash, tracerConfig); err != nil {
		return nil, remoteRpcError(err, "debug_traceTransaction")
	}
	if diff == nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc, errors.Errorf("no trace for transaction %s", hash.Hex()))
	}
	return diff, nil
}

/*
RawCall performs an arbitrary JSON-RPC call against the endpoint. params must be a JSON document: an array is passed
as the positional parameter list, any other value as the single parameter. An empty string means no parameters.
Malformed params are reported as SerializationError, failures of the call itself as RemoteRpcError.
*/
func (g *Gateway) RawCall(method string, params string) (json.RawMessage, error) {
	args, err := parseRawParams(params)
	if err != nil {
		return nil, err
	}

	g.logger.Trace("Forwarding ", method, " to ", g.Endpoint())
	var result json.RawMessage
	if err := g.clientPool.ExecuteRequestBlocking(g.ctx, &result, method, args...); err != nil {
		return nil, remoteRpcError(err, method)
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return result, nil
}

func parseRawParams(params string) ([]interface{}, error) {
	trimmed := bytes.TrimSpace([]byte(params))
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, forktypes.NewForkError(forktypes.ErrCodeSerialization, errors.Errorf("params are not valid JSON: %q", params))
	}

	if trimmed[0] != '[' {
		return []interface{}{json.RawMessage(trimmed)}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, forktypes.NewForkError(forktypes.ErrCodeSerialization, errors.WithStack(err))
	}
	args := make([]interface{}, len(list))
	for i, param := range list {
		args[i] = param
	}
	return args, nil
}

// Close releases the caches of every backend and the endpoint's clients.
func (g *Gateway) Close() error {
	g.backendsLock.Lock()
	defer g.backendsLock.Unlock()

	var firstErr error
	for height, backend := range g.backends {
		if err := backend.cache.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close cache at block %d", height)
		}
	}
	g.backends = make(map[uint64]*RPCBackend)
	g.clientPool.Close()
	return firstErr
}
