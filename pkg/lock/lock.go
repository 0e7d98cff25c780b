// Package lock implements record-level two-phase locking: a table of lock
// heads keyed by RID value, shared/exclusive modes, and wound-wait deadlock
// avoidance. It follows the structure of yase's Lock/lock_manager.h/.cc
// (two-level latching: a table mutex guarding lookup/insert, a per-head
// mutex guarding the request queue) blended with the Go idiom of
// StoreMy's pkg/concurrency/lock manager for expressing a lock head in Go.
// Blocked requests wait on the head's sync.Cond until granted. StoreMy
// itself uses cycle detection rather than wound-wait, so its deadlock
// algorithm is not borrowed here.
package lock

import (
	"sync"

	"ledgercore/pkg/ids"
)

// Mode is a requested or held lock mode.
type Mode int

const (
	NL Mode = iota
	SH
	XL
)

// Txn is the narrow view of a transaction the lock manager needs: enough to
// run wound-wait and to record grants, without importing the txn package
// (which itself depends on LockManager to release locks on commit/abort).
type Txn interface {
	Timestamp() uint64
	Abort() uint64
	AddLock(rid ids.RID)
}

// Request is one entry in a lock head's FIFO queue.
type Request struct {
	Requester Txn
	Mode      Mode
	Granted   bool
}

// Head coordinates all lock requests for one RID.
type Head struct {
	mu          sync.Mutex
	cond        *sync.Cond
	currentMode Mode
	requests    []*Request
}

func newHead() *Head {
	h := &Head{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Manager is the lock table: a mapping from RID value to lock head, guarded
// by its own mutex distinct from each head's mutex.
type Manager struct {
	mu    sync.Mutex
	heads map[uint64]*Head

	Logf func(format string, args ...any) // nil-safe; defaults to no-op
}

// NewManager returns an empty lock manager.
func NewManager() *Manager {
	return &Manager{heads: make(map[uint64]*Head)}
}

func (m *Manager) logf(format string, args ...any) {
	if m.Logf != nil {
		m.Logf(format, args...)
	}
}

func conflicts(held, requested Mode) bool {
	if held == NL {
		return false
	}
	if requested == XL || held == XL {
		return true
	}
	return false // SH vs SH never conflicts
}

// AcquireLock requests mode on rid for tx. If tryLock is set, it fails
// immediately rather than queueing behind any existing request. Blocking
// requests wait on the head's condition until granted; a younger requester
// that conflicts with an already-granted older holder aborts itself instead
// of waiting (wound-wait, "die" variant).
func (m *Manager) AcquireLock(tx Txn, rid ids.RID, mode Mode, tryLock bool) bool {
	if !rid.IsValid() {
		return false
	}

	m.mu.Lock()
	head, ok := m.heads[rid.Value()]
	if !ok {
		head = newHead()
		m.heads[rid.Value()] = head
	}
	m.mu.Unlock()

	head.mu.Lock()
	defer head.mu.Unlock()

	if tryLock && len(head.requests) > 0 {
		return false
	}

	for _, r := range head.requests {
		if r.Requester == tx && r.Mode == mode {
			return true
		}
	}

	grantable := len(head.requests) == 0
	if !grantable && mode == SH {
		grantable = true
		for _, r := range head.requests {
			if r.Mode != SH {
				grantable = false
				break
			}
		}
	}

	for _, r := range head.requests {
		if !r.Granted || !conflicts(r.Mode, mode) {
			continue
		}
		if tx.Timestamp() > r.Requester.Timestamp() {
			m.logf("[lock] wound rid=%d requester=%d holder=%d", rid.Value(), tx.Timestamp(), r.Requester.Timestamp())
			tx.Abort()
			return false
		}
	}

	req := &Request{Requester: tx, Mode: mode, Granted: grantable}
	head.requests = append(head.requests, req)
	if grantable {
		tx.AddLock(rid)
		head.currentMode = mode
		m.logf("[lock] grant rid=%d mode=%d tx=%d", rid.Value(), mode, tx.Timestamp())
		return true
	}

	for !req.Granted {
		head.cond.Wait()
	}
	return true
}

// ReleaseLock removes tx's request from rid's lock head and regrants the
// queue as needed. Returns false if there is no lock head for rid or tx
// holds no request on it.
func (m *Manager) ReleaseLock(tx Txn, rid ids.RID) bool {
	m.mu.Lock()
	head, ok := m.heads[rid.Value()]
	m.mu.Unlock()
	if !ok {
		return false
	}

	head.mu.Lock()
	defer head.mu.Unlock()

	idx := -1
	for i, r := range head.requests {
		if r.Requester == tx {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	head.requests = append(head.requests[:idx], head.requests[idx+1:]...)

	switch {
	case len(head.requests) == 0:
		head.currentMode = NL
	case head.requests[0].Mode == XL:
		first := head.requests[0]
		if !first.Granted {
			first.Granted = true
			first.Requester.AddLock(rid)
		}
		head.currentMode = XL
	default:
		for _, r := range head.requests {
			if r.Mode != SH {
				break
			}
			if !r.Granted {
				r.Granted = true
				r.Requester.AddLock(rid)
			}
		}
		head.currentMode = SH
	}

	head.cond.Broadcast()
	return true
}
