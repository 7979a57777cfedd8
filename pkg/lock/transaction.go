// Package lock implements row-level shared/exclusive locking with
// strict two-phase locking and Wound-Wait deadlock prevention, using a
// single lock table whose queues support the wait/wound protocol a plain
// mutex can't express.
package lock

import (
	"sync"

	"github.com/relcore/relcore/pkg/rid"
)

// RID is the row identifier the lock manager keys its lock table by. It is
// opaque here, the same type the hash index stores as its value half.
type RID = rid.RID

// TxnState is a transaction's position in its two-phase locking lifecycle.
type TxnState int

const (
	Growing TxnState = iota
	Shrinking
	Committed
	Aborted
)

func (s TxnState) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel governs which locks a transaction may acquire and how long
// it must hold them.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// Transaction is the lock manager's view of one in-flight unit of work: an
// id (smaller id = older = higher Wound-Wait priority), a 2PL state, an
// isolation level, and the two sets of rows it currently holds locked.
type Transaction struct {
	id        int64
	isolation IsolationLevel

	mu     sync.Mutex
	state  TxnState
	shared map[RID]struct{}
	excl   map[RID]struct{}
}

// NewTransaction creates a transaction with the given id (assigned by the
// caller in increasing order) and isolation level, starting in GROWING.
func NewTransaction(id int64, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:        id,
		isolation: isolation,
		state:     Growing,
		shared:    make(map[RID]struct{}),
		excl:      make(map[RID]struct{}),
	}
}

// ID returns the transaction's id.
func (t *Transaction) ID() int64 { return t.id }

// IsolationLevel returns the transaction's isolation level.
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

// State returns the transaction's current 2PL state.
func (t *Transaction) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s TxnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// HasShared reports whether the transaction holds a shared lock on r.
func (t *Transaction) HasShared(r RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.shared[r]
	return ok
}

// HasExclusive reports whether the transaction holds an exclusive lock on r.
func (t *Transaction) HasExclusive(r RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.excl[r]
	return ok
}

func (t *Transaction) addShared(r RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shared[r] = struct{}{}
}

func (t *Transaction) addExclusive(r RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.excl[r] = struct{}{}
}

func (t *Transaction) removeShared(r RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.shared, r)
}

func (t *Transaction) removeExclusive(r RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.excl, r)
}

func (t *Transaction) upgradeSharedToExclusive(r RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.shared, r)
	t.excl[r] = struct{}{}
}

// SharedLocks returns the rows currently held with a shared lock.
func (t *Transaction) SharedLocks() []RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RID, 0, len(t.shared))
	for r := range t.shared {
		out = append(out, r)
	}
	return out
}

// ExclusiveLocks returns the rows currently held with an exclusive lock.
func (t *Transaction) ExclusiveLocks() []RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RID, 0, len(t.excl))
	for r := range t.excl {
		out = append(out, r)
	}
	return out
}
