package testutils

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/rpc"
)

// FakeAccount is the state of an account served by a FakeNode at some block height.
type FakeAccount struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// FakeBlock is a block header served by a FakeNode. Transactions are filled in by AddTransaction.
type FakeBlock struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  uint64
	BaseFee    *big.Int
	GasLimit   uint64
	Coinbase   common.Address
	Difficulty *big.Int
	MixDigest  common.Hash

	transactions []common.Hash
}

// FakeTransaction is a legacy transaction included in a FakeNode block.
type FakeTransaction struct {
	From     common.Address
	To       *common.Address
	Nonce    uint64
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Input    []byte

	BlockNumber uint64
}

// PrestateAccount is an account entry of a prestateTracer diff.
type PrestateAccount struct {
	Balance *hexutil.Big                `json:"balance,omitempty"`
	Nonce   uint64                      `json:"nonce,omitempty"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// StateDiff is the result of debug_traceTransaction with the prestateTracer in diff mode.
type StateDiff struct {
	Pre  map[common.Address]PrestateAccount `json:"pre"`
	Post map[common.Address]PrestateAccount `json:"post"`
}

// FakeNode is an in-process JSON-RPC node serving the subset of the eth and debug namespaces used by the remote data
// gateway. State is kept per block height: a query at height h sees the most recent SetAccount at a height <= h. Every
// call is counted so tests can assert on caching and deduplication.
type FakeNode struct {
	mu sync.Mutex

	chainID uint64
	head    uint64

	accounts map[common.Address]map[uint64]FakeAccount
	blocks   map[uint64]*FakeBlock
	txs      map[common.Hash]*fakeTxEntry
	logs     []map[string]any
	diffs    map[common.Hash]StateDiff

	lastLogFilter map[string]any
	calls         map[string]int

	server *rpc.Server
}

type fakeTxEntry struct {
	tx    FakeTransaction
	hash  common.Hash
	index uint64
}

// NewFakeNode creates a node for the given chain id and registers its RPC services.
func NewFakeNode(chainID uint64) *FakeNode {
	node := &FakeNode{
		chainID:  chainID,
		accounts: make(map[common.Address]map[uint64]FakeAccount),
		blocks:   make(map[uint64]*FakeBlock),
		txs:      make(map[common.Hash]*fakeTxEntry),
		diffs:    make(map[common.Hash]StateDiff),
		calls:    make(map[string]int),
		server:   rpc.NewServer(),
	}
	if err := node.server.RegisterName("eth", &fakeEthService{node: node}); err != nil {
		panic(err)
	}
	if err := node.server.RegisterName("debug", &fakeDebugService{node: node}); err != nil {
		panic(err)
	}
	if err := node.server.RegisterName("web3", &fakeWeb3Service{node: node}); err != nil {
		panic(err)
	}
	return node
}

// Dial returns a new in-process client connected to the node.
func (n *FakeNode) Dial() *rpc.Client {
	return rpc.DialInProc(n.server)
}

// Close stops the RPC server.
func (n *FakeNode) Close() {
	n.server.Stop()
}

// SetHead sets the block number answered by eth_blockNumber and used for "latest" queries.
func (n *FakeNode) SetHead(height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.head = height
}

// SetAccount sets the state of addr from the given height onwards.
func (n *FakeNode) SetAccount(height uint64, addr common.Address, account FakeAccount) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[addr]; !ok {
		n.accounts[addr] = make(map[uint64]FakeAccount)
	}
	n.accounts[addr][height] = account
}

// AddBlock adds a block and moves the head forward if needed.
func (n *FakeNode) AddBlock(block FakeBlock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if block.Hash == (common.Hash{}) {
		block.Hash = common.BigToHash(new(big.Int).SetUint64(block.Number + 0xb10c))
	}
	n.blocks[block.Number] = &block
	if block.Number > n.head {
		n.head = block.Number
	}
}

// AddTransaction appends tx to its block and returns the transaction hash. The block must have been added first.
func (n *FakeNode) AddTransaction(tx FakeTransaction) common.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	block, ok := n.blocks[tx.BlockNumber]
	if !ok {
		panic(fmt.Sprintf("block %d not added to fake node", tx.BlockNumber))
	}
	hash := tx.toGethTransaction().Hash()
	n.txs[hash] = &fakeTxEntry{tx: tx, hash: hash, index: uint64(len(block.transactions))}
	block.transactions = append(block.transactions, hash)
	return hash
}

// SetStateDiff sets the prestate diff returned for a transaction.
func (n *FakeNode) SetStateDiff(txHash common.Hash, diff StateDiff) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.diffs[txHash] = diff
}

// SetLogs sets the raw log objects returned by eth_getLogs. Entries are returned as-is so tests can omit fields.
func (n *FakeNode) SetLogs(logs ...map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = logs
}

// LastLogFilter returns the filter object received by the last eth_getLogs call.
func (n *FakeNode) LastLogFilter() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastLogFilter
}

// Calls returns how many times the given method (e.g. "eth_getBalance") was called.
func (n *FakeNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// TotalCalls returns the number of calls received across all methods.
func (n *FakeNode) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, count := range n.calls {
		total += count
	}
	return total
}

func (n *FakeNode) record(method string) {
	n.calls[method]++
}

// resolveHeight parses a block tag or hex number. Must be called with the lock held.
func (n *FakeNode) resolveHeight(tag string) (uint64, error) {
	switch strings.ToLower(tag) {
	case "latest", "pending", "safe", "finalized", "":
		return n.head, nil
	case "earliest":
		return 0, nil
	}
	height, err := hexutil.DecodeUint64(tag)
	if err != nil {
		return 0, fmt.Errorf("invalid block tag %q: %w", tag, err)
	}
	return height, nil
}

// accountAt returns the state of addr at height. Must be called with the lock held.
func (n *FakeNode) accountAt(addr common.Address, height uint64) (FakeAccount, bool) {
	versions, ok := n.accounts[addr]
	if !ok {
		return FakeAccount{}, false
	}
	heights := make([]uint64, 0, len(versions))
	for h := range versions {
		if h <= height {
			heights = append(heights, h)
		}
	}
	if len(heights) == 0 {
		return FakeAccount{}, false
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] > heights[j] })
	return versions[heights[0]], true
}

func (tx FakeTransaction) toGethTransaction() *types.Transaction {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(1)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    tx.Nonce,
		GasPrice: gasPrice,
		Gas:      tx.Gas,
		To:       tx.To,
		Value:    value,
		Data:     tx.Input,
	})
}

// fakeEthService serves the eth namespace.
type fakeEthService struct {
	node *FakeNode
}

func (s *fakeEthService) ChainId() hexutil.Uint64 {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_chainId")
	return hexutil.Uint64(s.node.chainID)
}

func (s *fakeEthService) BlockNumber() hexutil.Uint64 {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_blockNumber")
	return hexutil.Uint64(s.node.head)
}

func (s *fakeEthService) GetBalance(addr common.Address, tag string) (*hexutil.Big, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getBalance")
	height, err := s.node.resolveHeight(tag)
	if err != nil {
		return nil, err
	}
	account, _ := s.node.accountAt(addr, height)
	if account.Balance == nil {
		return (*hexutil.Big)(new(big.Int)), nil
	}
	return (*hexutil.Big)(new(big.Int).Set(account.Balance)), nil
}

func (s *fakeEthService) GetTransactionCount(addr common.Address, tag string) (hexutil.Uint64, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getTransactionCount")
	height, err := s.node.resolveHeight(tag)
	if err != nil {
		return 0, err
	}
	account, _ := s.node.accountAt(addr, height)
	return hexutil.Uint64(account.Nonce), nil
}

func (s *fakeEthService) GetCode(addr common.Address, tag string) (hexutil.Bytes, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getCode")
	height, err := s.node.resolveHeight(tag)
	if err != nil {
		return nil, err
	}
	account, _ := s.node.accountAt(addr, height)
	return hexutil.Bytes(common.CopyBytes(account.Code)), nil
}

func (s *fakeEthService) GetStorageAt(addr common.Address, slot common.Hash, tag string) (hexutil.Bytes, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getStorageAt")
	height, err := s.node.resolveHeight(tag)
	if err != nil {
		return nil, err
	}
	account, _ := s.node.accountAt(addr, height)
	value := account.Storage[slot]
	return hexutil.Bytes(value.Bytes()), nil
}

func (s *fakeEthService) GetBlockByNumber(tag string, fullTransactions bool) (map[string]any, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getBlockByNumber")
	height, err := s.node.resolveHeight(tag)
	if err != nil {
		return nil, err
	}
	block, ok := s.node.blocks[height]
	if !ok {
		return nil, nil
	}

	result := map[string]any{
		"number":       hexutil.Uint64(block.Number),
		"hash":         block.Hash,
		"parentHash":   block.ParentHash,
		"timestamp":    hexutil.Uint64(block.Timestamp),
		"gasLimit":     hexutil.Uint64(block.GasLimit),
		"miner":        block.Coinbase,
		"mixHash":      block.MixDigest,
		"difficulty":   (*hexutil.Big)(orZero(block.Difficulty)),
		"transactions": block.transactions,
	}
	if block.BaseFee != nil {
		result["baseFeePerGas"] = (*hexutil.Big)(block.BaseFee)
	}
	if fullTransactions {
		full := make([]map[string]any, 0, len(block.transactions))
		for _, hash := range block.transactions {
			encoded, err := s.node.encodeTransaction(s.node.txs[hash])
			if err != nil {
				return nil, err
			}
			full = append(full, encoded)
		}
		result["transactions"] = full
	}
	return result, nil
}

func (s *fakeEthService) GetTransactionByHash(hash common.Hash) (map[string]any, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getTransactionByHash")
	entry, ok := s.node.txs[hash]
	if !ok {
		return nil, nil
	}
	return s.node.encodeTransaction(entry)
}

func (s *fakeEthService) GetLogs(filter map[string]any) ([]map[string]any, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("eth_getLogs")
	s.node.lastLogFilter = filter
	if s.node.logs == nil {
		return []map[string]any{}, nil
	}
	return s.node.logs, nil
}

// encodeTransaction renders a transaction the way eth_getTransactionByHash does. Must be called with the lock held.
func (n *FakeNode) encodeTransaction(entry *fakeTxEntry) (map[string]any, error) {
	encoded, err := entry.tx.toGethTransaction().MarshalJSON()
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	block := n.blocks[entry.tx.BlockNumber]
	result["hash"] = entry.hash
	result["from"] = entry.tx.From
	result["blockNumber"] = hexutil.Uint64(block.Number)
	result["blockHash"] = block.Hash
	result["transactionIndex"] = hexutil.Uint64(entry.index)
	return result, nil
}

// fakeDebugService serves the debug namespace.
type fakeDebugService struct {
	node *FakeNode
}

func (s *fakeDebugService) TraceTransaction(hash common.Hash, config map[string]any) (*StateDiff, error) {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("debug_traceTransaction")
	if tracer, _ := config["tracer"].(string); tracer != "prestateTracer" {
		return nil, fmt.Errorf("unsupported tracer %q", tracer)
	}
	diff, ok := s.node.diffs[hash]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", hash.Hex())
	}
	return &diff, nil
}

// fakeWeb3Service serves the web3 namespace.
type fakeWeb3Service struct {
	node *FakeNode
}

func (s *fakeWeb3Service) ClientVersion() string {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	s.node.record("web3_clientVersion")
	return "FakeNode/v1.0.0"
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
