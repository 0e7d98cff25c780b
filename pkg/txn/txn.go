// Package txn implements the transaction lifecycle: timestamp assignment
// from a process-wide counter, active-transaction bookkeeping, and the
// commit/abort log-then-release protocol. It generalizes yase's
// yase_internal.h Transaction methods and Lock/lock_manager.cc's
// Transaction::Commit/Abort into an explicit Registry object rather than
// the file-scope globals (ts_counter, active_transactions,
// active_txn_mutex) the original uses, in the style of
// storage_engine/transaction_manager's struct-based state.
package txn

import (
	"sync"
	"sync/atomic"

	"ledgercore/pkg/ids"
	"ledgercore/pkg/lock"
	"ledgercore/pkg/wal"
)

// State is a transaction's lifecycle state.
type State int

const (
	InProgress State = iota
	Committed
	Aborted
)

// Transaction tracks one unit of work: its assigned timestamp, lifecycle
// state, and the RIDs it currently holds a granted lock on.
type Transaction struct {
	timestamp uint64
	registry  *Registry

	mu    sync.Mutex
	state State
	locks []ids.RID
}

// Timestamp returns the transaction's assigned timestamp. Smaller means
// older.
func (t *Transaction) Timestamp() uint64 {
	return t.timestamp
}

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Locks returns a snapshot of the RIDs this transaction currently holds a
// granted lock on.
func (t *Transaction) Locks() []ids.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ids.RID, len(t.locks))
	copy(out, t.locks)
	return out
}

// AddLock records rid as held by this transaction. Called by the lock
// manager while it holds the relevant lock head's mutex; the append itself
// is serialized by the transaction's own mutex.
func (t *Transaction) AddLock(rid ids.RID) {
	t.mu.Lock()
	t.locks = append(t.locks, rid)
	t.mu.Unlock()
}

func (t *Transaction) isInProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == InProgress
}

// Commit logs the commit, flushes it durable, logs end, releases every held
// lock, and removes the transaction from the active list. It returns true
// only if every step — including every lock release — succeeded.
func (t *Transaction) Commit() bool {
	if !t.isInProgress() {
		return false
	}

	if !t.registry.log.LogCommit(t.timestamp) {
		t.setState(Aborted)
		return false
	}
	if !t.registry.log.Flush() {
		t.setState(Aborted)
		return false
	}
	if !t.registry.log.LogEnd(t.timestamp) {
		t.setState(Aborted)
		return false
	}

	allReleased := true
	for _, rid := range t.Locks() {
		if !t.registry.locks.ReleaseLock(t, rid) {
			allReleased = false
		}
	}
	t.clearLocks()

	t.registry.remove(t)

	if allReleased {
		t.setState(Committed)
	} else {
		t.setState(Aborted)
	}
	return allReleased
}

// Abort logs the abort, flushes it durable, logs end, best-effort releases
// every held lock, and removes the transaction from the active list. It
// returns the transaction's timestamp on success or the invalid-timestamp
// sentinel if the abort protocol itself failed or the transaction was not
// in progress.
func (t *Transaction) Abort() uint64 {
	if !t.isInProgress() {
		return ids.InvalidTimestamp
	}

	if !t.registry.log.LogAbort(t.timestamp) {
		t.setState(Aborted)
		return ids.InvalidTimestamp
	}
	if !t.registry.log.Flush() {
		t.setState(Aborted)
		return ids.InvalidTimestamp
	}
	if !t.registry.log.LogEnd(t.timestamp) {
		t.setState(Aborted)
		return ids.InvalidTimestamp
	}

	for _, rid := range t.Locks() {
		t.registry.locks.ReleaseLock(t, rid)
	}
	t.clearLocks()

	t.registry.remove(t)
	t.setState(Aborted)
	return t.timestamp
}

func (t *Transaction) clearLocks() {
	t.mu.Lock()
	t.locks = nil
	t.mu.Unlock()
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Registry assigns transaction timestamps from a process-wide monotonic
// counter and tracks the active transaction list, replacing the original
// engine's package-scope globals with an explicit, dependency-injected
// object per the spec's "context object" design note.
type Registry struct {
	counter atomic.Uint64

	log   *wal.LogManager
	locks *lock.Manager

	mu     sync.Mutex
	active []*Transaction
}

// NewRegistry returns a Registry whose transactions log through log and
// lock through locks.
func NewRegistry(log *wal.LogManager, locks *lock.Manager) *Registry {
	return &Registry{log: log, locks: locks}
}

// Begin creates a new in-progress transaction, assigns it the next
// timestamp, and registers it in the active list.
func (r *Registry) Begin() *Transaction {
	t := &Transaction{
		timestamp: r.counter.Add(1) - 1,
		registry:  r,
		state:     InProgress,
	}
	r.mu.Lock()
	r.active = append(r.active, t)
	r.mu.Unlock()
	return t
}

// Active returns a snapshot of the currently active transactions.
func (r *Registry) Active() []*Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transaction, len(r.active))
	copy(out, r.active)
	return out
}

func (r *Registry) remove(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, active := range r.active {
		if active == t {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return
		}
	}
}
