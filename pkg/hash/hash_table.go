package hash

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/relcore/relcore/pkg/rid"
	"github.com/relcore/relcore/pkg/storage"
)

// bufferPool is the subset of storage.ParallelBufferPool (or a single
// storage.BufferPoolInstance, for small standalone indexes) that the hash
// table needs. Accepting an interface rather than a concrete type lets
// tests run against a single unsharded instance.
type bufferPool interface {
	FetchPage(storage.PageID) (*storage.Page, error)
	NewPage() (*storage.Page, error)
	UnpinPage(storage.PageID, bool) bool
}

// hashKey mixes an int64 key into a 32-bit hash using FNV-1a.
func hashKey(key int64) uint32 {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(key >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum32()
}

// ExtendibleHashTable is a (key, value) index whose directory and bucket
// pages live in a buffer pool. One reader/writer latch (tableLatch) guards
// directory structure; individual bucket pages carry their own latch from
// the buffer pool (SPEC_FULL.md §5's latch hierarchy: tableLatch above
// buffer pool instance mutexes above page latches).
type ExtendibleHashTable struct {
	pool bufferPool

	tableLatch sync.RWMutex
	dirPageID  storage.PageID

	splits uint64
	merges uint64
}

// NewExtendibleHashTable allocates a fresh directory page (with one empty
// root bucket) through pool and returns a ready-to-use table. Call
// OpenExtendibleHashTable instead to reattach to an index that already has
// a directory page on disk.
func NewExtendibleHashTable(pool bufferPool) (*ExtendibleHashTable, error) {
	dirPage, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("allocate directory page: %w", err)
	}
	if dirPage == nil {
		return nil, fmt.Errorf("allocate directory page: buffer pool exhausted")
	}
	dirPageID := dirPage.ID()

	bucketPage, err := pool.NewPage()
	if err != nil {
		pool.UnpinPage(dirPageID, false)
		return nil, fmt.Errorf("allocate root bucket page: %w", err)
	}
	if bucketPage == nil {
		pool.UnpinPage(dirPageID, false)
		return nil, fmt.Errorf("allocate root bucket page: buffer pool exhausted")
	}
	NewBucketPage(bucketPage.Data()).Reset()
	bucketID := bucketPage.ID()
	pool.UnpinPage(bucketID, true)

	dir := NewDirectoryPage(dirPage.Data())
	dir.Reset(int32(dirPageID), int32(bucketID))
	pool.UnpinPage(dirPageID, true)

	return &ExtendibleHashTable{pool: pool, dirPageID: dirPageID}, nil
}

// OpenExtendibleHashTable reattaches to an index whose directory page id is
// already known (recorded by the catalog layer at creation time).
func OpenExtendibleHashTable(pool bufferPool, dirPageID storage.PageID) *ExtendibleHashTable {
	return &ExtendibleHashTable{pool: pool, dirPageID: dirPageID}
}

// DirectoryPageID returns the page id of this table's directory page, the
// handle a catalog persists to reopen the index later.
func (t *ExtendibleHashTable) DirectoryPageID() storage.PageID { return t.dirPageID }

func (t *ExtendibleHashTable) fetchDirectory() (*storage.Page, *DirectoryPage, error) {
	page, err := t.pool.FetchPage(t.dirPageID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch directory page: %w", err)
	}
	if page == nil {
		return nil, nil, fmt.Errorf("fetch directory page: buffer pool exhausted")
	}
	return page, NewDirectoryPage(page.Data()), nil
}

// GetValue returns every value stored under key.
func (t *ExtendibleHashTable) GetValue(key int64) ([]rid.RID, error) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	defer t.pool.UnpinPage(dirPage.ID(), false)

	idx := dir.IndexOf(hashKey(key))
	bucketID := storage.PageID(dir.BucketPageID(idx))

	bucketPage, err := t.pool.FetchPage(bucketID)
	if err != nil {
		return nil, fmt.Errorf("fetch bucket page %d: %w", bucketID, err)
	}
	if bucketPage == nil {
		return nil, fmt.Errorf("fetch bucket page %d: buffer pool exhausted", bucketID)
	}
	bucketPage.RLock()
	values, _ := NewBucketPage(bucketPage.Data()).GetValue(key, nil)
	bucketPage.RUnlock()
	t.pool.UnpinPage(bucketID, false)

	return values, nil
}

// Insert adds (key, value) to the index, splitting buckets as needed.
// Returns false if the pair is already present, or if the directory has
// reached MaxGlobalDepth and the offending bucket still cannot accept the
// entry after splitting as far as possible.
func (t *ExtendibleHashTable) Insert(key int64, value rid.RID) (bool, error) {
	t.tableLatch.RLock()
	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		t.tableLatch.RUnlock()
		return false, err
	}
	idx := dir.IndexOf(hashKey(key))
	bucketID := storage.PageID(dir.BucketPageID(idx))
	t.pool.UnpinPage(dirPage.ID(), false)

	bucketPage, err := t.pool.FetchPage(bucketID)
	if err != nil {
		t.tableLatch.RUnlock()
		return false, fmt.Errorf("fetch bucket page %d: %w", bucketID, err)
	}
	if bucketPage == nil {
		t.tableLatch.RUnlock()
		return false, fmt.Errorf("fetch bucket page %d: buffer pool exhausted", bucketID)
	}
	bucketPage.Lock()
	bucket := NewBucketPage(bucketPage.Data())
	inserted := bucket.Insert(key, value)
	duplicate := false
	if !inserted {
		duplicate = bucketContains(bucket, key, value)
	}
	bucketPage.Unlock()
	t.pool.UnpinPage(bucketID, inserted)
	t.tableLatch.RUnlock()

	if inserted || duplicate {
		return inserted, nil
	}
	return t.splitInsert(key, value)
}

// bucketContains reports whether (key, value) is already a live entry of
// bucket. Insert's own duplicate scan (bucket.go) runs before its free-slot
// scan, so a failed Insert on an already-full bucket must be distinguished
// here: a duplicate pair returns false outright, while a genuinely full
// bucket triggers a split.
func bucketContains(bucket *BucketPage, key int64, value rid.RID) bool {
	values, found := bucket.GetValue(key, nil)
	if !found {
		return false
	}
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// splitInsert grows the directory and/or splits the offending bucket until
// key,value fits, then re-attempts the insert. Each call to Insert that
// reaches here takes tableLatch exclusive for the duration of one split
// step. Each split raises the offending bucket's local depth, and the
// insert fails instead of splitting once that local depth has reached
// MaxGlobalDepth, so the loop always terminates.
func (t *ExtendibleHashTable) splitInsert(key int64, value rid.RID) (bool, error) {
	t.tableLatch.Lock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		t.tableLatch.Unlock()
		return false, err
	}

	idx := dir.IndexOf(hashKey(key))
	oldBucketID := storage.PageID(dir.BucketPageID(idx))
	oldLD := dir.LocalDepth(idx)

	if uint32(oldLD) == dir.GlobalDepth() {
		if dir.GlobalDepth() >= MaxGlobalDepth {
			t.pool.UnpinPage(dirPage.ID(), false)
			t.tableLatch.Unlock()
			return false, nil
		}
		dir.IncrGlobalDepth()
	}

	newBucketPage, err := t.pool.NewPage()
	if err != nil {
		t.pool.UnpinPage(dirPage.ID(), true)
		t.tableLatch.Unlock()
		return false, fmt.Errorf("allocate split bucket page: %w", err)
	}
	if newBucketPage == nil {
		t.pool.UnpinPage(dirPage.ID(), true)
		t.tableLatch.Unlock()
		return false, nil
	}
	newBucketID := newBucketPage.ID()
	NewBucketPage(newBucketPage.Data()).Reset()

	newLD := oldLD + 1
	newLDMask := uint32(1)<<newLD - 1
	splitBit := uint32(1) << (newLD - 1)

	size := dir.Size()
	for i := uint32(0); i < size; i++ {
		if storage.PageID(dir.BucketPageID(i)) != oldBucketID {
			continue
		}
		if i&splitBit != 0 {
			dir.SetBucketPageID(i, int32(newBucketID))
		}
		dir.SetLocalDepth(i, newLD)
	}

	oldBucketPage, err := t.pool.FetchPage(oldBucketID)
	if err != nil {
		t.pool.UnpinPage(dirPage.ID(), true)
		t.tableLatch.Unlock()
		return false, fmt.Errorf("fetch split source bucket %d: %w", oldBucketID, err)
	}
	if oldBucketPage == nil {
		t.pool.UnpinPage(dirPage.ID(), true)
		t.tableLatch.Unlock()
		return false, fmt.Errorf("fetch split source bucket %d: buffer pool exhausted", oldBucketID)
	}
	oldBucketPage.Lock()
	newBucketPage.Lock()
	oldBucket := NewBucketPage(oldBucketPage.Data())
	newBucket := NewBucketPage(newBucketPage.Data())

	entries := oldBucket.GetExistedData()
	oldBucket.Reset()
	for _, e := range entries {
		if hashKey(e.Key)&newLDMask&splitBit != 0 {
			newBucket.Insert(e.Key, e.Value)
		} else {
			oldBucket.Insert(e.Key, e.Value)
		}
	}
	oldBucketPage.Unlock()
	newBucketPage.Unlock()
	t.pool.UnpinPage(oldBucketID, true)
	t.pool.UnpinPage(newBucketID, true)
	t.splits++

	t.pool.UnpinPage(dirPage.ID(), true)
	t.tableLatch.Unlock()

	return t.Insert(key, value)
}

// Remove deletes (key, value) from the index. If the owning bucket becomes
// empty, a merge is attempted.
func (t *ExtendibleHashTable) Remove(key int64, value rid.RID) (bool, error) {
	t.tableLatch.RLock()
	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		t.tableLatch.RUnlock()
		return false, err
	}
	idx := dir.IndexOf(hashKey(key))
	bucketID := storage.PageID(dir.BucketPageID(idx))
	t.pool.UnpinPage(dirPage.ID(), false)

	bucketPage, err := t.pool.FetchPage(bucketID)
	if err != nil {
		t.tableLatch.RUnlock()
		return false, fmt.Errorf("fetch bucket page %d: %w", bucketID, err)
	}
	if bucketPage == nil {
		t.tableLatch.RUnlock()
		return false, fmt.Errorf("fetch bucket page %d: buffer pool exhausted", bucketID)
	}
	bucketPage.Lock()
	bucket := NewBucketPage(bucketPage.Data())
	removed := bucket.Remove(key, value)
	becameEmpty := removed && bucket.IsEmpty()
	bucketPage.Unlock()
	t.pool.UnpinPage(bucketID, removed)
	t.tableLatch.RUnlock()

	if becameEmpty {
		if err := t.merge(key); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// merge undoes the most recent split of the bucket owning key's index, if
// the bucket is (still, under the exclusive latch) empty and its sibling
// has the same local depth. Aborting quietly on any failed precondition is
// correct: the caller's Remove already succeeded regardless.
func (t *ExtendibleHashTable) merge(key int64) error {
	t.tableLatch.Lock()
	defer t.tableLatch.Unlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(dirPage.ID(), true)

	idx := dir.IndexOf(hashKey(key))
	bucketID := storage.PageID(dir.BucketPageID(idx))
	ld := dir.LocalDepth(idx)
	if ld == 0 {
		return nil
	}
	splitIdx := dir.SplitImageIndex(idx)
	splitBucketID := storage.PageID(dir.BucketPageID(splitIdx))
	splitLD := dir.LocalDepth(splitIdx)
	if splitLD != ld {
		return nil
	}

	bucketPage, err := t.pool.FetchPage(bucketID)
	if err != nil {
		return fmt.Errorf("fetch bucket page %d: %w", bucketID, err)
	}
	if bucketPage == nil {
		return fmt.Errorf("fetch bucket page %d: buffer pool exhausted", bucketID)
	}
	bucketPage.RLock()
	stillEmpty := NewBucketPage(bucketPage.Data()).IsEmpty()
	bucketPage.RUnlock()
	t.pool.UnpinPage(bucketID, false)
	if !stillEmpty {
		return nil
	}

	size := dir.Size()
	for i := uint32(0); i < size; i++ {
		if storage.PageID(dir.BucketPageID(i)) == bucketID {
			dir.SetBucketPageID(i, int32(splitBucketID))
			dir.SetLocalDepth(i, ld-1)
		} else if storage.PageID(dir.BucketPageID(i)) == splitBucketID {
			dir.SetLocalDepth(i, ld-1)
		}
	}

	// The emptied bucket page itself is left resident but now unreferenced
	// by any directory entry; reclaiming it is the catalog layer's job via
	// DeletePage once it observes the page is no longer reachable.

	for dir.CanShrink() && dir.GlobalDepth() > 0 {
		dir.DecrGlobalDepth()
	}
	t.merges++
	return nil
}

// VerifyIntegrity checks the directory's structural invariants.
func (t *ExtendibleHashTable) VerifyIntegrity() error {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	dirPage, dir, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(dirPage.ID(), false)
	return dir.VerifyIntegrity()
}

// Stats reports split/merge counters and the current global depth,
// consumed by the admin /_stats route.
func (t *ExtendibleHashTable) Stats() map[string]any {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	globalDepth := uint32(0)
	if dirPage, dir, err := t.fetchDirectory(); err == nil {
		globalDepth = dir.GlobalDepth()
		t.pool.UnpinPage(dirPage.ID(), false)
	}
	return map[string]any{
		"global_depth": globalDepth,
		"splits":       t.splits,
		"merges":       t.merges,
	}
}
