package fork

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/chain/state"
	"github.com/crytic/multifork/chain/types"
	"github.com/crytic/multifork/logging"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

/*
Registry owns every fork of a session, the active fork pointer, the persistent account set and the checkpoint journal.
Reads and writes issued through the Registry resolve against the active fork, or against a purely local layer when no
fork is active. The Registry is not safe for concurrent use: a session has a single execution thread, and the only
blocking calls it makes go through the remote data gateways.
*/
type Registry struct {
	forkingConfig *config.ForkingConfig
	gateways      *state.Gateways
	executor      TransactionExecutor

	forks  map[ForkId]*Fork
	order  []ForkId
	nextId ForkId
	active *Fork

	// localLayer holds the state of non-persistent accounts while no fork is active.
	localLayer *overrideLayer

	persistent *PersistentAccountSet
	journal    *journal

	// environment is the shared execution environment a fork's environment is copied into on selection.
	environment *Environment

	broadcasting bool
	privileged   map[common.Address]struct{}

	// Events defines the event system for the Registry.
	Events RegistryEvents

	sessionId uuid.UUID
	logger    *logging.Logger
}

// NewRegistry creates a registry with no forks. environment is the execution environment shared with the EVM, which
// the registry overwrites whenever a fork is selected or the active fork is re-anchored. The registry keeps its own copy
// of forkingConfig.
func NewRegistry(forkingConfig *config.ForkingConfig, gateways *state.Gateways, environment *Environment) *Registry {
	if environment == nil {
		environment = &Environment{}
	}
	sessionId := uuid.New()
	r := &Registry{
		forkingConfig: forkingConfig.Clone(),
		gateways:      gateways,
		executor:      NewStateDiffExecutor(),
		forks:         make(map[ForkId]*Fork),
		localLayer:    newOverrideLayer(),
		journal:       newJournal(),
		environment:   environment,
		privileged:    make(map[common.Address]struct{}),
		sessionId:     sessionId,
		logger: logging.GlobalLogger.NewSubLogger("module", logging.REGISTRY_SERVICE).
			NewSubLogger("session", sessionId.String()),
	}
	r.persistent = newPersistentAccountSet(r)
	return r
}

// SetTransactionExecutor replaces the executor used to replay and transact historical transactions.
func (r *Registry) SetTransactionExecutor(executor TransactionExecutor) {
	r.executor = executor
}

// SessionId returns the id attached to every log line of this registry.
func (r *Registry) SessionId() uuid.UUID {
	return r.sessionId
}

// Config returns the forking configuration endpoints are resolved with.
func (r *Registry) Config() *config.ForkingConfig {
	return r.forkingConfig
}

// Environment returns the shared execution environment.
func (r *Registry) Environment() *Environment {
	return r.environment
}

// CreateFork creates a fork of endpoint, an alias or URL, rooted at anchor. The fork is not selected.
func (r *Registry) CreateFork(endpoint string, anchor Anchor) (ForkId, error) {
	fork, err := r.buildFork(endpoint, anchor)
	if err != nil {
		return 0, err
	}
	r.register(fork)
	return fork.id, nil
}

// CreateForkAtTransaction creates a fork of endpoint rooted immediately before txHash executes.
func (r *Registry) CreateForkAtTransaction(endpoint string, txHash common.Hash) (ForkId, error) {
	return r.CreateFork(endpoint, TransactionAnchor(txHash))
}

// CreateSelectFork creates a fork and selects it. Either both happen or neither does.
func (r *Registry) CreateSelectFork(endpoint string, anchor Anchor) (ForkId, error) {
	if r.broadcasting {
		return 0, types.NewForkError(types.ErrCodeSelectForkDuringBroadcast, nil)
	}
	fork, err := r.buildFork(endpoint, anchor)
	if err != nil {
		return 0, err
	}
	r.register(fork)
	r.activate(fork)
	return fork.id, nil
}

// CreateSelectForkAtTransaction creates a fork rooted immediately before txHash executes and selects it.
func (r *Registry) CreateSelectForkAtTransaction(endpoint string, txHash common.Hash) (ForkId, error) {
	return r.CreateSelectFork(endpoint, TransactionAnchor(txHash))
}

// SelectFork makes the fork with the given id active and copies its environment into the shared environment.
func (r *Registry) SelectFork(id ForkId) error {
	if r.broadcasting {
		return types.NewForkError(types.ErrCodeSelectForkDuringBroadcast, nil)
	}
	fork, err := r.Fork(id)
	if err != nil {
		return err
	}
	r.activate(fork)
	return nil
}

// RollFork re-anchors the fork with the given id, or the active fork if id is nil. The fork keeps its id while its
// local writes are discarded. Persistent accounts are unaffected.
func (r *Registry) RollFork(id *ForkId, anchor Anchor) error {
	fork, err := r.targetFork(id)
	if err != nil {
		return err
	}

	rebuilt, err := r.buildForkFromUrl(fork.endpoint, anchor)
	if err != nil {
		return err
	}
	previousAnchor := fork.anchor
	fork.reanchor(rebuilt)
	r.logger.Info("Rolled fork ", fork.id, " to ", fork.anchor.String(),
		logging.StructuredLogInfo{"forkId": fork.id, "block": fork.anchor.Block})

	if fork == r.active {
		*r.environment = fork.environment.Copy()
	}
	r.Events.ForkRolled.Publish(ForkRolledEvent{Registry: r, Fork: fork, PreviousAnchor: previousAnchor})
	return nil
}

// RollForkToTransaction re-anchors the fork with the given id, or the active fork if id is nil, immediately before
// txHash executes.
func (r *Registry) RollForkToTransaction(id *ForkId, txHash common.Hash) error {
	return r.RollFork(id, TransactionAnchor(txHash))
}

// ActiveForkId returns the id of the active fork. The boolean is false if no fork is active.
func (r *Registry) ActiveForkId() (ForkId, bool) {
	if r.active == nil {
		return 0, false
	}
	return r.active.id, true
}

// ActiveForkUrl returns the endpoint of the active fork. The boolean is false if no fork is active.
func (r *Registry) ActiveForkUrl() (string, bool) {
	if r.active == nil {
		return "", false
	}
	return r.active.endpoint, true
}

// ActiveFork returns the active fork, or NoActiveFork.
func (r *Registry) ActiveFork() (*Fork, error) {
	if r.active == nil {
		return nil, types.NewForkError(types.ErrCodeNoActiveFork, nil)
	}
	return r.active, nil
}

// Fork returns the fork with the given id, or UnknownForkId.
func (r *Registry) Fork(id ForkId) (*Fork, error) {
	fork, ok := r.forks[id]
	if !ok {
		return nil, types.NewForkError(types.ErrCodeUnknownForkId, errors.Errorf("fork %d does not exist", id))
	}
	return fork, nil
}

// Forks returns the ids of every fork in creation order.
func (r *Registry) Forks() []ForkId {
	return append([]ForkId{}, r.order...)
}

// MakePersistent adds addrs to the persistent account set.
func (r *Registry) MakePersistent(addrs ...common.Address) {
	r.persistent.Extend(addrs...)
	for _, addr := range addrs {
		r.logger.Debug("Made ", addr.Hex(), " persistent")
	}
}

// RevokePersistent removes addrs from the persistent account set.
func (r *Registry) RevokePersistent(addrs ...common.Address) {
	r.persistent.RemoveMany(addrs...)
	for _, addr := range addrs {
		r.logger.Debug("Revoked persistence of ", addr.Hex())
	}
}

// IsPersistent returns whether addr is persistent.
func (r *Registry) IsPersistent(addr common.Address) bool {
	return r.persistent.Contains(addr)
}

// PersistentAccounts returns the persistent account set.
func (r *Registry) PersistentAccounts() *PersistentAccountSet {
	return r.persistent
}

// AllowPrivilegedAccess records that addr may bypass the cheatcode sender restrictions of the caller.
func (r *Registry) AllowPrivilegedAccess(addr common.Address) {
	r.privileged[addr] = struct{}{}
}

// HasPrivilegedAccess returns whether AllowPrivilegedAccess was called for addr.
func (r *Registry) HasPrivilegedAccess(addr common.Address) bool {
	_, ok := r.privileged[addr]
	return ok
}

// SetBroadcastMode records whether a real transaction broadcast is in progress. Fork selection fails while it is.
func (r *Registry) SetBroadcastMode(broadcasting bool) {
	r.broadcasting = broadcasting
}

// Broadcasting returns whether a broadcast is in progress.
func (r *Registry) Broadcasting() bool {
	return r.broadcasting
}

// GetLogs queries the logs of the active fork's endpoint.
func (r *Registry) GetLogs(query state.LogQuery) ([]state.LogEntry, error) {
	fork, err := r.ActiveFork()
	if err != nil {
		return nil, err
	}
	return fork.gateway.GetLogs(query)
}

// RawCall forwards a JSON-RPC call to the active fork's endpoint.
func (r *Registry) RawCall(method string, params string) ([]byte, error) {
	fork, err := r.ActiveFork()
	if err != nil {
		return nil, err
	}
	return fork.gateway.RawCall(method, params)
}

// Close releases every gateway of the session.
func (r *Registry) Close() error {
	return r.gateways.Close()
}

// GetBalance returns the balance of addr in the active state.
func (r *Registry) GetBalance(addr common.Address) (*uint256.Int, error) {
	return r.activeView().GetBalance(addr)
}

// GetNonce returns the nonce of addr in the active state.
func (r *Registry) GetNonce(addr common.Address) (uint64, error) {
	return r.activeView().GetNonce(addr)
}

// GetCode returns the code of addr in the active state.
func (r *Registry) GetCode(addr common.Address) ([]byte, error) {
	return r.activeView().GetCode(addr)
}

// GetState returns a storage slot of addr in the active state.
func (r *Registry) GetState(addr common.Address, slot common.Hash) (common.Hash, error) {
	return r.activeView().GetState(addr, slot)
}

// SetBalance sets the balance of addr in the active state.
func (r *Registry) SetBalance(addr common.Address, balance *uint256.Int) {
	r.activeView().SetBalance(addr, balance)
}

// SetNonce sets the nonce of addr in the active state.
func (r *Registry) SetNonce(addr common.Address, nonce uint64) {
	r.activeView().SetNonce(addr, nonce)
}

// SetCode sets the code of addr in the active state.
func (r *Registry) SetCode(addr common.Address, code []byte) {
	r.activeView().SetCode(addr, code)
}

// SetState sets a storage slot of addr in the active state.
func (r *Registry) SetState(addr common.Address, slot common.Hash, value common.Hash) {
	r.activeView().SetState(addr, slot, value)
}

// CreateAccount marks addr as created locally in the active state.
func (r *Registry) CreateAccount(addr common.Address) {
	r.activeView().CreateAccount(addr)
}

// DeleteAccount clears addr in the active state.
func (r *Registry) DeleteAccount(addr common.Address) {
	r.activeView().DeleteAccount(addr)
}

// Checkpoint returns an id that Revert and Commit accept.
func (r *Registry) Checkpoint() int {
	return r.journal.checkpoint()
}

// Revert undoes every write made since the checkpoint with the given id, on any fork and on persistent accounts.
// Fork selection, re-anchoring and persistence changes are not undone.
func (r *Registry) Revert(id int) {
	r.journal.revert(id)
}

// Commit discards the checkpoint with the given id, folding its writes into the enclosing checkpoint.
func (r *Registry) Commit(id int) {
	r.journal.commit(id)
}

// activeLayer returns the override layer of the active fork, or the local layer.
func (r *Registry) activeLayer() *overrideLayer {
	if r.active == nil {
		return r.localLayer
	}
	return r.active.layer
}

// inactiveLayers returns every override layer but the active one.
func (r *Registry) inactiveLayers() []*overrideLayer {
	layers := make([]*overrideLayer, 0, len(r.forks)+1)
	if r.active != nil {
		layers = append(layers, r.localLayer)
	}
	for _, id := range r.order {
		if fork := r.forks[id]; fork != r.active {
			layers = append(layers, fork.layer)
		}
	}
	return layers
}

func (r *Registry) activeView() *stateView {
	if r.active == nil {
		return &stateView{
			layer:      r.localLayer,
			backend:    state.EmptyBackend{},
			persistent: r.persistent,
			journal:    r.journal,
		}
	}
	return r.viewOf(r.active)
}

func (r *Registry) viewOf(fork *Fork) *stateView {
	return &stateView{
		layer:      fork.layer,
		backend:    fork.backend,
		persistent: r.persistent,
		journal:    r.journal,
	}
}

// targetFork returns the fork with the given id, or the active fork if id is nil.
func (r *Registry) targetFork(id *ForkId) (*Fork, error) {
	if id == nil {
		return r.ActiveFork()
	}
	return r.Fork(*id)
}

// activate makes fork the active fork.
func (r *Registry) activate(fork *Fork) {
	previous := r.active
	r.active = fork
	*r.environment = fork.environment.Copy()
	r.logger.Info("Selected fork ", fork.id, logging.StructuredLogInfo{"forkId": fork.id, "block": fork.environment.BlockNumber})
	r.Events.ForkSelected.Publish(ForkSelectedEvent{Registry: r, Fork: fork, Previous: previous})
}

// register assigns the next id to fork and stores it.
func (r *Registry) register(fork *Fork) {
	fork.id = r.nextId
	r.nextId++
	r.forks[fork.id] = fork
	r.order = append(r.order, fork.id)
	r.logger.Info("Created fork ", fork.id, " at ", fork.anchor.String(), logging.StructuredLogInfo{
		"forkId":   fork.id,
		"block":    fork.anchor.Block,
		"caching":  fork.CachingEnabled(),
		"endpoint": fork.endpoint,
	})
	r.Events.ForkCreated.Publish(ForkCreatedEvent{Registry: r, Fork: fork})
}

// buildFork resolves endpoint and builds an unregistered fork rooted at anchor.
func (r *Registry) buildFork(endpoint string, anchor Anchor) (*Fork, error) {
	url, err := r.forkingConfig.GetRpcUrl(endpoint)
	if err != nil {
		return nil, err
	}
	return r.buildForkFromUrl(url, anchor)
}

// buildForkFromUrl builds an unregistered fork of url rooted at anchor. Transaction anchors are fully replayed before
// the fork is returned.
func (r *Registry) buildForkFromUrl(url string, anchor Anchor) (*Fork, error) {
	gateway, err := r.gateways.Get(url)
	if err != nil {
		return nil, err
	}
	if anchor.Kind == AnchorTransaction {
		return r.buildForkAtTransaction(gateway, anchor.TxHash)
	}

	if anchor.Kind == AnchorLatest {
		anchor.Block, err = gateway.LatestBlockNumber()
		if err != nil {
			return nil, err
		}
	}
	environment, err := r.environmentAt(gateway, anchor.Block)
	if err != nil {
		return nil, err
	}

	return &Fork{
		endpoint:    url,
		anchor:      anchor,
		environment: environment,
		layer:       newOverrideLayer(),
		gateway:     gateway,
		backend:     gateway.Backend(anchor.Block),
	}, nil
}

// buildForkAtTransaction builds an unregistered fork whose state is the state immediately before txHash: the parent of
// its block plus every preceding transaction of the block, replayed. The environment is the one of the containing
// block.
func (r *Registry) buildForkAtTransaction(gateway *state.Gateway, txHash common.Hash) (*Fork, error) {
	tx, err := gateway.TransactionByHash(txHash)
	if err != nil {
		return nil, err
	}
	if tx.BlockNumber == 0 {
		return nil, types.NewForkError(types.ErrCodeRemoteRpc, errors.Errorf("transaction %s is in the genesis block", txHash.Hex()))
	}
	block, err := gateway.BlockByNumber(tx.BlockNumber)
	if err != nil {
		return nil, err
	}
	if tx.Index >= uint64(len(block.Transactions)) || block.Transactions[tx.Index] != txHash {
		return nil, types.NewForkError(types.ErrCodeRemoteRpc,
			errors.Errorf("transaction %s not found at index %d of block %d", txHash.Hex(), tx.Index, block.Number))
	}
	environment, err := r.environmentAt(gateway, tx.BlockNumber)
	if err != nil {
		return nil, err
	}

	fork := &Fork{
		endpoint: gateway.Endpoint(),
		anchor: Anchor{
			Kind:    AnchorTransaction,
			Block:   tx.BlockNumber,
			TxHash:  txHash,
			TxIndex: tx.Index,
		},
		environment: environment,
		layer:       newOverrideLayer(),
		gateway:     gateway,
	}
	fork.backend = gateway.Backend(fork.remoteHeight())

	if err := r.replayTransactions(fork, block, tx.Index); err != nil {
		return nil, err
	}
	return fork, nil
}

// environmentAt builds the environment of a fork executing on top of the block at height.
func (r *Registry) environmentAt(gateway *state.Gateway, height uint64) (Environment, error) {
	chainId, err := gateway.ChainID()
	if err != nil {
		return Environment{}, err
	}
	block, err := gateway.BlockByNumber(height)
	if err != nil {
		return Environment{}, err
	}
	return newEnvironment(chainId, block), nil
}
