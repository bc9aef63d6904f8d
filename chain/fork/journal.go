package fork

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// journalEntry is a modification of an AccountState that can be undone.
type journalEntry interface {
	revert()
}

// revision maps a checkpoint id to the length of the journal when the checkpoint was taken.
type revision struct {
	id           int
	journalIndex int
}

/*
journal records every write made to override layers and persistent accounts so nested checkpoints can be reverted.
Entries reference the AccountState they modified rather than an address, so a revert restores the object that was
written no matter which fork is active when the revert happens. Fork selection and persistence changes are not
journaled.
*/
type journal struct {
	entries        []journalEntry
	validRevisions []revision
	nextRevisionId int
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// checkpoint returns an id marking the current position of the journal.
func (j *journal) checkpoint() int {
	id := j.nextRevisionId
	j.nextRevisionId++
	j.validRevisions = append(j.validRevisions, revision{id: id, journalIndex: len(j.entries)})
	return id
}

// revert undoes every entry recorded since the checkpoint with the given id, newest first, and invalidates it along
// with every checkpoint taken after it. Reverting an unknown id panics, as the EVM only reverts ids it obtained.
func (j *journal) revert(id int) {
	idx := j.revisionIndex(id)
	snapshot := j.validRevisions[idx].journalIndex

	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert()
		j.entries[i] = nil
	}
	j.entries = j.entries[:snapshot]
	j.validRevisions = j.validRevisions[:idx]
}

// commit discards the checkpoint with the given id and every checkpoint taken after it. Its entries now belong to the
// enclosing checkpoint. Once no checkpoint is left, entries can never be reverted and are dropped.
func (j *journal) commit(id int) {
	idx := j.revisionIndex(id)
	j.validRevisions = j.validRevisions[:idx]
	if len(j.validRevisions) == 0 {
		j.entries = nil
	}
}

func (j *journal) revisionIndex(id int) int {
	for i := len(j.validRevisions) - 1; i >= 0; i-- {
		if j.validRevisions[i].id == id {
			return i
		}
	}
	panic(fmt.Errorf("checkpoint id %v cannot be reverted or committed", id))
}

// length returns the number of recorded entries.
func (j *journal) length() int {
	return len(j.entries)
}

type (
	balanceChange struct {
		account    *AccountState
		prev       *uint256.Int
		prevLoaded bool
	}
	nonceChange struct {
		account    *AccountState
		prev       uint64
		prevLoaded bool
	}
	codeChange struct {
		account    *AccountState
		prev       []byte
		prevLoaded bool
	}
	storageChange struct {
		account     *AccountState
		slot        common.Hash
		prev        common.Hash
		prevExisted bool
	}
	// resetAccountChange undoes CreateAccount and DeleteAccount, which replace the whole account.
	resetAccountChange struct {
		account *AccountState
		prev    *AccountState
	}
)

func (ch balanceChange) revert() {
	ch.account.balance = ch.prev
	ch.account.balanceLoaded = ch.prevLoaded
}

func (ch nonceChange) revert() {
	ch.account.nonce = ch.prev
	ch.account.nonceLoaded = ch.prevLoaded
}

func (ch codeChange) revert() {
	ch.account.code = ch.prev
	ch.account.codeLoaded = ch.prevLoaded
}

func (ch storageChange) revert() {
	if ch.prevExisted {
		ch.account.storage[ch.slot] = ch.prev
	} else {
		delete(ch.account.storage, ch.slot)
	}
}

func (ch resetAccountChange) revert() {
	*ch.account = *ch.prev
}
