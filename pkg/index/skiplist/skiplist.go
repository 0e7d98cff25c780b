// Package skiplist implements a concurrent ordered map over fixed-size
// keys and payloads: per-level reader/writer latches with hand-over-hand
// descent, following yase's Index/skiplist.h/.cc (sentinel head/tail towers
// at full height, geometric coin-flip level choice, per-level
// pthread_rwlock_t latches), restructured in the simpler Go style of
// laura-db's pkg/lsm/skiplist.go (explicit forward-pointer slices per
// node, predecessor-slice insert/delete) which is not itself concurrent —
// only its node/traversal shape is borrowed here, not its locking (it has
// none).
package skiplist

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

type node struct {
	key     []byte
	payload []byte
	next    []*node
}

// KV is one key/payload pair returned by Scan, both freshly allocated and
// owned by the caller.
type KV struct {
	Key     []byte
	Payload []byte
}

// SkipList is a concurrent ordered map from fixed-size keys to fixed-size
// payloads.
type SkipList struct {
	keySize     int
	payloadSize int
	maxLevel    int

	latches []sync.RWMutex
	head    *node
	tail    *node
	height  atomic.Int32
}

// New returns an empty skip list keyed by keySize-byte keys mapping to
// payloadSize-byte payloads, with towers up to maxLevel levels tall.
func New(keySize, payloadSize, maxLevel int) *SkipList {
	head := &node{next: make([]*node, maxLevel)}
	tail := &node{next: make([]*node, maxLevel)}
	for i := 0; i < maxLevel; i++ {
		head.next[i] = tail
	}

	sl := &SkipList{
		keySize:     keySize,
		payloadSize: payloadSize,
		maxLevel:    maxLevel,
		latches:     make([]sync.RWMutex, maxLevel),
		head:        head,
		tail:        tail,
	}
	sl.height.Store(1)
	return sl
}

func (sl *SkipList) randomLevel() int {
	level := 1
	for level < sl.maxLevel && rand.IntN(2) == 0 {
		level++
	}
	return level
}

func (sl *SkipList) raiseHeight(to int) {
	for {
		cur := sl.height.Load()
		if int(cur) >= to {
			return
		}
		if sl.height.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

func (sl *SkipList) valid(key, payload []byte) bool {
	return len(key) == sl.keySize && len(payload) == sl.payloadSize
}

// Insert adds key -> payload, choosing a random tower height by a geometric
// coin flip. Returns false if key already exists or the arguments are the
// wrong size.
//
// Every level from maxLevel-1 down to 0 is latched and traversed on every
// call, not just the levels below the list's currently known height: two
// concurrent inserts both growing the tower past the old height would
// otherwise race on a predecessor assumed (rather than found by traversal)
// to be the head, since the loser could acquire a newly-grown level's latch
// only after the winner had already spliced a real node into it.
func (sl *SkipList) Insert(key, payload []byte) bool {
	if !sl.valid(key, payload) {
		return false
	}

	nodeLevel := sl.randomLevel()
	preds := make([]*node, sl.maxLevel)
	wrote := make([]bool, sl.maxLevel)

	curr := sl.head
	for i := sl.maxLevel - 1; i >= 0; i-- {
		if i < nodeLevel {
			sl.latches[i].Lock()
			wrote[i] = true
		} else {
			sl.latches[i].RLock()
		}
		for curr.next[i] != sl.tail && bytes.Compare(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		preds[i] = curr
	}

	unlockAll := func() {
		for i := 0; i < sl.maxLevel; i++ {
			if wrote[i] {
				sl.latches[i].Unlock()
			} else {
				sl.latches[i].RUnlock()
			}
		}
	}

	curr = curr.next[0]
	if curr != sl.tail && bytes.Equal(curr.key, key) {
		unlockAll()
		return false
	}

	newNode := &node{
		key:     append([]byte(nil), key...),
		payload: append([]byte(nil), payload...),
		next:    make([]*node, nodeLevel),
	}
	for i := 0; i < nodeLevel; i++ {
		newNode.next[i] = preds[i].next[i]
		preds[i].next[i] = newNode
	}
	sl.raiseHeight(nodeLevel)
	unlockAll()
	return true
}

// Search copies the payload for key into outPayload (if non-nil) and
// reports whether key was found.
func (sl *SkipList) Search(key []byte, outPayload []byte) bool {
	if len(key) != sl.keySize {
		return false
	}

	localHeight := int(sl.height.Load())
	curr := sl.head
	sl.latches[localHeight-1].RLock()
	for i := localHeight - 1; i >= 0; i-- {
		for curr.next[i] != sl.tail && bytes.Compare(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		if i > 0 {
			sl.latches[i-1].RLock()
		}
		if i != 0 {
			sl.latches[i].RUnlock()
		}
	}

	curr = curr.next[0]
	found := curr != sl.tail && bytes.Equal(curr.key, key)
	if found && outPayload != nil {
		copy(outPayload, curr.payload)
	}
	sl.latches[0].RUnlock()
	return found
}

// Update overwrites the payload for an existing key in place. Descent is
// read-latched; the level-0 latch is taken exclusively for the overwrite
// itself so readers never observe a torn payload.
func (sl *SkipList) Update(key, payload []byte) bool {
	if !sl.valid(key, payload) {
		return false
	}

	localHeight := int(sl.height.Load())
	curr := sl.head
	for i := localHeight - 1; i >= 1; i-- {
		sl.latches[i].RLock()
		for curr.next[i] != sl.tail && bytes.Compare(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		sl.latches[i].RUnlock()
	}

	sl.latches[0].Lock()
	defer sl.latches[0].Unlock()
	for curr.next[0] != sl.tail && bytes.Compare(curr.next[0].key, key) < 0 {
		curr = curr.next[0]
	}
	curr = curr.next[0]
	if curr == sl.tail || !bytes.Equal(curr.key, key) {
		return false
	}
	copy(curr.payload, payload)
	return true
}

// Delete removes key, unlinking its node from every level it occupies.
func (sl *SkipList) Delete(key []byte) bool {
	if len(key) != sl.keySize {
		return false
	}

	localHeight := int(sl.height.Load())
	for i := localHeight - 1; i >= 0; i-- {
		sl.latches[i].Lock()
	}

	preds := make([]*node, localHeight)
	curr := sl.head
	for i := localHeight - 1; i >= 0; i-- {
		for curr.next[i] != sl.tail && bytes.Compare(curr.next[i].key, key) < 0 {
			curr = curr.next[i]
		}
		preds[i] = curr
	}
	curr = curr.next[0]

	if curr == sl.tail || !bytes.Equal(curr.key, key) {
		for i := 0; i < localHeight; i++ {
			sl.latches[i].Unlock()
		}
		return false
	}

	for i := len(curr.next); i < localHeight; i++ {
		sl.latches[i].Unlock()
	}
	for i := 0; i < len(curr.next); i++ {
		if preds[i].next[i] == curr {
			preds[i].next[i] = curr.next[i]
		}
		sl.latches[i].Unlock()
	}
	return true
}

// Scan emits up to nkeys (key, payload) pairs in ascending key order,
// starting at the smallest key >= startKey (or the first node if startKey
// is nil). When inclusive is false and the cursor lands exactly on
// startKey, the cursor advances one node first.
func (sl *SkipList) Scan(startKey []byte, nkeys int, inclusive bool) []KV {
	if nkeys <= 0 {
		return nil
	}

	localHeight := int(sl.height.Load())
	curr := sl.head
	for i := localHeight - 1; i >= 0; i-- {
		sl.latches[i].RLock()
		if startKey != nil {
			for curr.next[i] != sl.tail && bytes.Compare(curr.next[i].key, startKey) < 0 {
				curr = curr.next[i]
			}
		}
		if i != 0 {
			sl.latches[i].RUnlock()
		}
	}

	var cursor *node
	if startKey == nil {
		cursor = sl.head.next[0]
	} else {
		cursor = curr.next[0]
	}
	if cursor == sl.tail {
		sl.latches[0].RUnlock()
		return nil
	}
	if !inclusive && startKey != nil && bytes.Equal(cursor.key, startKey) {
		cursor = cursor.next[0]
	}

	var out []KV
	for cursor != sl.tail && len(out) < nkeys {
		out = append(out, KV{
			Key:     append([]byte(nil), cursor.key...),
			Payload: append([]byte(nil), cursor.payload...),
		})
		cursor = cursor.next[0]
	}
	sl.latches[0].RUnlock()
	return out
}

// Height reports the skip list's current tower height, mostly useful for
// tests and debug logging.
func (sl *SkipList) Height() int { return int(sl.height.Load()) }

func (sl *SkipList) String() string {
	return fmt.Sprintf("skiplist(height=%d, maxLevel=%d)", sl.Height(), sl.maxLevel)
}
