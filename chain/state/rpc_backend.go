package state

import (
	"context"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/multifork/chain/state/cache"
	"github.com/crytic/multifork/chain/state/rpc"
	"github.com/crytic/multifork/chain/types"
	"github.com/crytic/multifork/logging"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

/*
RPCBackend defines a StateBackend for fetching state from a remote RPC server. It is locked to a single block height
and caches data with no expiry, since state at a fixed height never changes. Every fork anchored at the same endpoint
and height shares one RPCBackend through its Gateway.
*/
type RPCBackend struct {
	context    context.Context
	clientPool *rpc.ClientPool
	height     uint64
	heightTag  string

	cache  cache.StateCache
	logger *logging.Logger
}

func newRPCBackend(
	ctx context.Context,
	clientPool *rpc.ClientPool,
	height uint64,
	stateCache cache.StateCache,
	logger *logging.Logger) *RPCBackend {
	return &RPCBackend{
		context:    ctx,
		clientPool: clientPool,
		height:     height,
		heightTag:  hexutil.Uint64(height).String(),
		cache:      stateCache,
		logger:     logger,
	}
}

// Height returns the block height the backend is pinned to.
func (q *RPCBackend) Height() uint64 {
	return q.height
}

/*
GetStorageAt returns data stored in the remote RPC for the given address/slot.
Note that Ethereum RPC will return zero for slots that have never been written to or are associated with undeployed
contracts.
Errors are RemoteRpcError ForkErrors wrapping network errors, or a context cancelled error when the session is
shutting down.
*/
func (q *RPCBackend) GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error) {
	if data, err := q.cache.GetSlotData(addr, slot); err == nil {
		return data, nil
	}

	q.logger.Trace("Fetching storage slot ", slot.Hex(), " of ", addr.Hex(), " at block ", q.height)
	var result hexutil.Bytes
	err := q.clientPool.ExecuteRequestBlocking(q.context, &result, "eth_getStorageAt", addr, slot, q.heightTag)
	if err != nil {
		return common.Hash{}, remoteRpcError(err, "eth_getStorageAt")
	}

	value := common.BytesToHash(result)
	if err = q.cache.WriteSlotData(addr, slot, value); err != nil {
		q.logger.Warn("Failed to cache storage slot", err)
	}
	return value, nil
}

/*
GetStateObject returns the balance, nonce and code stored in the remote RPC for the specified account. The three
queries are issued concurrently.
Note that the Ethereum RPC will return zero for accounts that do not exist.
*/
func (q *RPCBackend) GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error) {
	if obj, err := q.cache.GetStateObject(addr); err == nil {
		return obj.Balance, obj.Nonce, obj.Code, nil
	}

	q.logger.Trace("Fetching account ", addr.Hex(), " at block ", q.height)
	pendingBalance, err := q.clientPool.ExecuteRequestAsync(q.context, "eth_getBalance", addr, q.heightTag)
	if err != nil {
		return nil, 0, nil, remoteRpcError(err, "eth_getBalance")
	}
	pendingNonce, err := q.clientPool.ExecuteRequestAsync(q.context, "eth_getTransactionCount", addr, q.heightTag)
	if err != nil {
		return nil, 0, nil, remoteRpcError(err, "eth_getTransactionCount")
	}
	pendingCode, err := q.clientPool.ExecuteRequestAsync(q.context, "eth_getCode", addr, q.heightTag)
	if err != nil {
		return nil, 0, nil, remoteRpcError(err, "eth_getCode")
	}

	balance := hexutil.Big{}
	if err = pendingBalance.GetResultBlocking(&balance); err != nil {
		return nil, 0, nil, remoteRpcError(err, "eth_getBalance")
	}
	balanceTyped, overflow := uint256.FromBig(balance.ToInt())
	if overflow {
		return nil, 0, nil, types.NewForkError(types.ErrCodeRemoteRpc,
			errors.Errorf("balance of %s does not fit into 256 bits", addr.Hex()))
	}

	nonce := hexutil.Uint64(0)
	if err = pendingNonce.GetResultBlocking(&nonce); err != nil {
		return nil, 0, nil, remoteRpcError(err, "eth_getTransactionCount")
	}

	code := hexutil.Bytes{}
	if err = pendingCode.GetResultBlocking(&code); err != nil {
		return nil, 0, nil, remoteRpcError(err, "eth_getCode")
	}

	err = q.cache.WriteStateObject(addr, cache.StateObject{
		Balance: balanceTyped,
		Nonce:   uint64(nonce),
		Code:    code,
	})
	if err != nil {
		q.logger.Warn("Failed to cache account ", addr.Hex(), err)
	}
	return balanceTyped, uint64(nonce), code, nil
}

// remoteRpcError wraps a transport failure of method into a RemoteRpcError. Context cancellation is passed through
// unwrapped so callers shutting down the session can tell it apart.
func remoteRpcError(err error, method string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return types.NewForkError(types.ErrCodeRemoteRpc, errors.Wrapf(err, "%s failed", method))
}
