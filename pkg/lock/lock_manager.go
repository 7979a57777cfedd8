package lock

import "sync"

// LockMode is the granularity of a row lock.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// LockRequest is one transaction's position in a row's lock queue.
type LockRequest struct {
	Txn     *Transaction
	Mode    LockMode
	Granted bool
}

// lockRequestQueue is the FIFO-by-arrival sequence of requests for one row,
// plus the condition variable Wound-Wait uses to wake waiters whenever the
// queue changes (a grant, a release, or a wounding).
type lockRequestQueue struct {
	cond     *sync.Cond
	requests []*LockRequest
}

// LockManager grants and revokes row-level shared/exclusive locks under
// strict two-phase locking, preventing deadlock by Wound-Wait: an older
// transaction (smaller id) never waits on a younger one — it wounds it
// instead. One mutex guards the entire lock table, matching the manager-
// level mutex SPEC_FULL.md §4.7 calls for (a single table rather than this
// codebase's own per-key lock striping, since Wound-Wait needs a global
// view of who is waiting on whom).
type LockManager struct {
	mu    sync.Mutex
	table map[RID]*lockRequestQueue

	grants uint64
	waits  uint64
	wounds uint64
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{table: make(map[RID]*lockRequestQueue)}
}

func (lm *LockManager) queueFor(r RID) *lockRequestQueue {
	q, ok := lm.table[r]
	if !ok {
		q = &lockRequestQueue{}
		q.cond = sync.NewCond(&lm.mu)
		lm.table[r] = q
	}
	return q
}

func conflicts(requested, held LockMode) bool {
	return !(requested == Shared && held == Shared)
}

// resolveConflicts scans queue for requests other than txn's own that
// conflict with a request of mode requested. txn must wait while any such
// request remains in the queue, regardless of age — two conflicting
// requests are never both granted at once. Wound-Wait's deadlock
// prevention comes in on top: every conflicting request from a younger
// transaction (larger id) is wounded, whether already granted or itself
// still waiting, so the only thing an older transaction ever waits on is
// an older holder actually finishing and calling Unlock. Returns whether
// txn must wait and whether any wounding occurred (so the caller can wake
// waiters).
func (lm *LockManager) resolveConflicts(queue *lockRequestQueue, txn *Transaction, requested LockMode) (wait, wounded bool) {
	for _, req := range queue.requests {
		if req.Txn == txn {
			continue
		}
		if !conflicts(requested, req.Mode) {
			continue
		}
		wait = true
		if req.Txn.ID() > txn.ID() && req.Txn.State() != Aborted {
			req.Txn.setState(Aborted)
			lm.wounds++
			wounded = true
		}
	}
	return wait, wounded
}

func removeRequest(queue *lockRequestQueue, txn *Transaction) {
	for i, req := range queue.requests {
		if req.Txn == txn {
			queue.requests = append(queue.requests[:i], queue.requests[i+1:]...)
			return
		}
	}
}

func findRequest(queue *lockRequestQueue, txn *Transaction) *LockRequest {
	for _, req := range queue.requests {
		if req.Txn == txn {
			return req
		}
	}
	return nil
}

// LockShared acquires a shared lock on r for txn, blocking until granted,
// denied by isolation policy, or the transaction is wounded.
func (lm *LockManager) LockShared(txn *Transaction, r RID) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == Aborted {
		return false, nil
	}
	if txn.State() == Shrinking {
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: LockOnShrinking}
	}
	if txn.IsolationLevel() == ReadUncommitted {
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: LockSharedOnReadUncommitted}
	}
	if txn.HasShared(r) || txn.HasExclusive(r) {
		return true, nil
	}

	queue := lm.queueFor(r)
	req := &LockRequest{Txn: txn, Mode: Shared}
	queue.requests = append(queue.requests, req)
	txn.addShared(r)

	for {
		wait, wounded := lm.resolveConflicts(queue, txn, Shared)
		if wounded {
			queue.cond.Broadcast()
		}
		if !wait {
			break
		}
		lm.waits++
		queue.cond.Wait()
		if txn.State() == Aborted {
			removeRequest(queue, txn)
			txn.removeShared(r)
			queue.cond.Broadcast()
			return false, nil
		}
	}
	req.Granted = true
	lm.grants++
	return true, nil
}

// LockExclusive acquires an exclusive lock on r for txn, upgrading in place
// if txn already holds a shared lock on r.
func (lm *LockManager) LockExclusive(txn *Transaction, r RID) (bool, error) {
	lm.mu.Lock()

	if txn.State() == Aborted {
		lm.mu.Unlock()
		return false, nil
	}
	if txn.State() == Shrinking {
		txn.setState(Aborted)
		lm.mu.Unlock()
		return false, &AbortError{TxnID: txn.ID(), Reason: LockOnShrinking}
	}
	if txn.HasExclusive(r) {
		lm.mu.Unlock()
		return true, nil
	}
	if txn.HasShared(r) {
		lm.mu.Unlock()
		return lm.LockUpgrade(txn, r)
	}

	queue := lm.queueFor(r)
	req := &LockRequest{Txn: txn, Mode: Exclusive}
	queue.requests = append(queue.requests, req)
	txn.addExclusive(r)

	for {
		wait, wounded := lm.resolveConflicts(queue, txn, Exclusive)
		if wounded {
			queue.cond.Broadcast()
		}
		if !wait {
			break
		}
		lm.waits++
		queue.cond.Wait()
		if txn.State() == Aborted {
			removeRequest(queue, txn)
			txn.removeExclusive(r)
			queue.cond.Broadcast()
			lm.mu.Unlock()
			return false, nil
		}
	}
	req.Granted = true
	lm.grants++
	lm.mu.Unlock()
	return true, nil
}

// LockUpgrade converts txn's existing shared lock on r into an exclusive
// lock, waiting for every other holder to release first.
func (lm *LockManager) LockUpgrade(txn *Transaction, r RID) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if txn.State() == Aborted {
		return false, nil
	}
	if txn.HasExclusive(r) {
		return true, nil
	}
	if txn.State() == Shrinking {
		txn.setState(Aborted)
		return false, &AbortError{TxnID: txn.ID(), Reason: LockOnShrinking}
	}

	queue := lm.queueFor(r)
	req := findRequest(queue, txn)
	if req == nil {
		req = &LockRequest{Txn: txn, Mode: Shared, Granted: true}
		queue.requests = append(queue.requests, req)
	}

	for {
		wait, wounded := lm.resolveConflicts(queue, txn, Exclusive)
		if wounded {
			queue.cond.Broadcast()
		}
		if !wait {
			break
		}
		lm.waits++
		queue.cond.Wait()
		if txn.State() == Aborted {
			removeRequest(queue, txn)
			txn.removeShared(r)
			queue.cond.Broadcast()
			return false, nil
		}
	}
	req.Mode = Exclusive
	txn.upgradeSharedToExclusive(r)
	lm.grants++
	return true, nil
}

// Unlock releases txn's lock on r, shared or exclusive. Under
// REPEATABLE_READ this transitions txn from GROWING to SHRINKING (strict
// 2PL); under the other isolation levels txn stays GROWING. Unlock does not
// hold exclusive locks back until commit: in every isolation level an
// exclusive lock is released as soon as Unlock is called for it.
func (lm *LockManager) Unlock(txn *Transaction, r RID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	queue, ok := lm.table[r]
	if !ok {
		return false
	}
	req := findRequest(queue, txn)
	if req == nil {
		return false
	}
	wasExclusive := req.Mode == Exclusive
	removeRequest(queue, txn)
	queue.cond.Broadcast()
	txn.removeShared(r)
	txn.removeExclusive(r)

	if txn.State() == Growing && txn.IsolationLevel() == RepeatableRead {
		txn.setState(Shrinking)
	} else if txn.State() == Growing && !wasExclusive {
		// READ_COMMITTED: releasing a shared lock during GROWING does not
		// force SHRINKING.
	}
	return true
}

// Stats reports grant/wait/wound counters, consumed by the admin /_stats
// route.
func (lm *LockManager) Stats() map[string]any {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	rowsLocked := 0
	for _, queue := range lm.table {
		if len(queue.requests) > 0 {
			rowsLocked++
		}
	}
	return map[string]any{
		"rows_locked": rowsLocked,
		"grants":      lm.grants,
		"waits":       lm.waits,
		"wounds":      lm.wounds,
	}
}
