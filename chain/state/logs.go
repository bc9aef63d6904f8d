package state

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	forktypes "github.com/crytic/multifork/chain/types"
	"github.com/pkg/errors"
)

// maxLogTopics is the number of indexed topics a log can carry.
const maxLogTopics = 4

// LogQuery describes an eth_getLogs filter. Block bounds are arbitrary precision so that out of range values can be
// rejected rather than truncated.
type LogQuery struct {
	FromBlock *big.Int
	ToBlock   *big.Int
	Address   common.Address
	Topics    []common.Hash
}

// LogEntry is a log returned by the endpoint. Every field is required.
type LogEntry struct {
	Address          common.Address
	Topics           []common.Hash
	Data             []byte
	BlockNumber      uint64
	TransactionHash  common.Hash
	TransactionIndex uint64
	BlockHash        common.Hash
	LogIndex         uint64
	Removed          bool
}

// rpcLog is the wire format of a log. Pointer fields are required and may be missing in malformed responses.
type rpcLog struct {
	Address          common.Address  `json:"address"`
	Topics           []common.Hash   `json:"topics"`
	Data             hexutil.Bytes   `json:"data"`
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	TransactionHash  *common.Hash    `json:"transactionHash"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	BlockHash        *common.Hash    `json:"blockHash"`
	LogIndex         *hexutil.Uint64 `json:"logIndex"`
	Removed          *bool           `json:"removed"`
}

func (l *rpcLog) toLogEntry() (LogEntry, error) {
	missing := ""
	switch {
	case l.BlockNumber == nil:
		missing = "blockNumber"
	case l.TransactionHash == nil:
		missing = "transactionHash"
	case l.TransactionIndex == nil:
		missing = "transactionIndex"
	case l.BlockHash == nil:
		missing = "blockHash"
	case l.LogIndex == nil:
		missing = "logIndex"
	case l.Removed == nil:
		missing = "removed"
	}
	if missing != "" {
		return LogEntry{}, forktypes.NewForkError(forktypes.ErrCodeRemoteRpc,
			errors.Errorf("eth_getLogs response is missing the %s field", missing))
	}

	topics := l.Topics
	if topics == nil {
		topics = []common.Hash{}
	}
	return LogEntry{
		Address:          l.Address,
		Topics:           topics,
		Data:             l.Data,
		BlockNumber:      uint64(*l.BlockNumber),
		TransactionHash:  *l.TransactionHash,
		TransactionIndex: uint64(*l.TransactionIndex),
		BlockHash:        *l.BlockHash,
		LogIndex:         uint64(*l.LogIndex),
		Removed:          *l.Removed,
	}, nil
}

// ValidateBlockBound returns RangeTooLarge if bound is negative or does not fit into 64 bits.
func ValidateBlockBound(bound *big.Int) (uint64, error) {
	if bound == nil {
		return 0, nil
	}
	if bound.Sign() < 0 || !bound.IsUint64() {
		return 0, forktypes.NewForkError(forktypes.ErrCodeRangeTooLarge,
			errors.Errorf("block %s must be less than 2^64", bound.String()))
	}
	return bound.Uint64(), nil
}

/*
GetLogs queries the endpoint for logs matching query. The block range is validated before the topics, and both before
any request is made. A response with no logs yields an empty, non-nil slice. A log missing any of its positional fields
fails the whole query with RemoteRpcError.
*/
func (g *Gateway) GetLogs(query LogQuery) ([]LogEntry, error) {
	fromBlock, err := ValidateBlockBound(query.FromBlock)
	if err != nil {
		return nil, err
	}
	toBlock, err := ValidateBlockBound(query.ToBlock)
	if err != nil {
		return nil, err
	}
	if len(query.Topics) > maxLogTopics {
		return nil, forktypes.NewForkError(forktypes.ErrCodeTooManyTopics,
			errors.Errorf("%d topics provided, at most %d are allowed", len(query.Topics), maxLogTopics))
	}

	filter := map[string]any{
		"address":   query.Address,
		"fromBlock": hexutil.Uint64(fromBlock),
		"toBlock":   hexutil.Uint64(toBlock),
	}
	if len(query.Topics) > 0 {
		filter["topics"] = query.Topics
	}

	var results []rpcLog
	if err := g.clientPool.ExecuteRequestBlocking(g.ctx, &results, "eth_getLogs", filter); err != nil {
		return nil, remoteRpcError(err, "eth_getLogs")
	}

	entries := make([]LogEntry, 0, len(results))
	for i := range results {
		entry, err := results[i].toLogEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
