package fork

import (
	"github.com/crytic/medusa-geth/common"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// layerProvider gives the persistent account set access to the override layers it moves accounts between.
type layerProvider interface {
	// activeLayer returns the override layer of the active fork, or the local layer if no fork is active.
	activeLayer() *overrideLayer
	// inactiveLayers returns every other override layer.
	inactiveLayers() []*overrideLayer
}

/*
PersistentAccountSet is the set of accounts whose state is shared by every fork. Each member resolves through exactly
one AccountState, whatever fork is active.

Promotion moves the active fork's view of the account into the set, and discards every other fork's copy. Demotion
hands the shared state back to the active fork's layer, while other forks resolve the account from their own remote
anchor again. The AccountState object itself is moved rather than copied, so checkpoints taken before a membership
change still revert writes made to it. Membership changes are not journaled.
*/
type PersistentAccountSet struct {
	accounts map[common.Address]*AccountState
	layers   layerProvider
}

func newPersistentAccountSet(layers layerProvider) *PersistentAccountSet {
	return &PersistentAccountSet{
		accounts: make(map[common.Address]*AccountState),
		layers:   layers,
	}
}

// Add makes addr persistent. Adding a persistent address is a no-op.
func (p *PersistentAccountSet) Add(addr common.Address) {
	if p.Contains(addr) {
		return
	}
	p.accounts[addr] = p.layers.activeLayer().take(addr)
	for _, layer := range p.layers.inactiveLayers() {
		layer.remove(addr)
	}
}

// Extend makes every address in addrs persistent.
func (p *PersistentAccountSet) Extend(addrs ...common.Address) {
	for _, addr := range addrs {
		p.Add(addr)
	}
}

// Remove makes addr fork-local again. Removing an address that is not persistent is a no-op.
func (p *PersistentAccountSet) Remove(addr common.Address) {
	account, ok := p.accounts[addr]
	if !ok {
		return
	}
	delete(p.accounts, addr)
	p.layers.activeLayer().put(addr, account)
}

// RemoveMany makes every address in addrs fork-local again.
func (p *PersistentAccountSet) RemoveMany(addrs ...common.Address) {
	for _, addr := range addrs {
		p.Remove(addr)
	}
}

// Contains returns whether addr is persistent.
func (p *PersistentAccountSet) Contains(addr common.Address) bool {
	_, ok := p.accounts[addr]
	return ok
}

// Addresses returns the persistent addresses in ascending order.
func (p *PersistentAccountSet) Addresses() []common.Address {
	addrs := maps.Keys(p.accounts)
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	return addrs
}

// Len returns the number of persistent addresses.
func (p *PersistentAccountSet) Len() int {
	return len(p.accounts)
}

// scrub removes every persistent address from layer.
func (p *PersistentAccountSet) scrub(layer *overrideLayer) {
	for addr := range p.accounts {
		layer.remove(addr)
	}
}
