package hash

import (
	"testing"

	"github.com/relcore/relcore/pkg/rid"
	"github.com/relcore/relcore/pkg/storage"
)

func newBucket() *BucketPage {
	return NewBucketPage(make([]byte, storage.PageSize))
}

func TestBucketPageInsertAndGetValue(t *testing.T) {
	b := newBucket()
	v := rid.RID{PageID: 3, SlotNum: 1}
	if !b.Insert(42, v) {
		t.Fatal("Insert() of a fresh key should succeed")
	}

	got, found := b.GetValue(42, nil)
	if !found || len(got) != 1 || got[0] != v {
		t.Fatalf("GetValue(42) = %v, %v; want [%v], true", got, found, v)
	}
}

func TestBucketPageInsertDuplicateRejected(t *testing.T) {
	b := newBucket()
	v := rid.RID{PageID: 3, SlotNum: 1}
	b.Insert(42, v)
	if b.Insert(42, v) {
		t.Fatal("Insert() of an identical (key,value) pair should fail")
	}
}

func TestBucketPageInsertSameKeyDifferentValueAllowed(t *testing.T) {
	b := newBucket()
	b.Insert(42, rid.RID{PageID: 1, SlotNum: 1})
	if !b.Insert(42, rid.RID{PageID: 2, SlotNum: 1}) {
		t.Fatal("Insert() of the same key with a different value should succeed")
	}
	got, found := b.GetValue(42, nil)
	if !found || len(got) != 2 {
		t.Fatalf("GetValue(42) = %v, want 2 entries", got)
	}
}

func TestBucketPageRemoveLeavesTombstone(t *testing.T) {
	b := newBucket()
	v := rid.RID{PageID: 3, SlotNum: 1}
	b.Insert(42, v)
	if !b.Remove(42, v) {
		t.Fatal("Remove() of a present (key,value) should succeed")
	}
	if _, found := b.GetValue(42, nil); found {
		t.Fatal("GetValue() after Remove() should find nothing")
	}
	if !b.occupied(0) {
		t.Fatal("Remove() must leave the occupied bit set as a tombstone")
	}
}

func TestBucketPageRemoveMissingFails(t *testing.T) {
	b := newBucket()
	if b.Remove(1, rid.RID{PageID: 1, SlotNum: 1}) {
		t.Fatal("Remove() of an absent pair should fail")
	}
}

func TestBucketPageIsFullAndIsEmpty(t *testing.T) {
	b := newBucket()
	if !b.IsEmpty() {
		t.Fatal("fresh bucket should be empty")
	}
	for i := 0; i < BucketArraySize; i++ {
		if !b.Insert(int64(i), rid.RID{PageID: storage.PageID(i), SlotNum: 0}) {
			t.Fatalf("Insert() failed at slot %d, bucket should not be full yet", i)
		}
	}
	if !b.IsFull() {
		t.Fatal("bucket should be full after inserting BucketArraySize entries")
	}
	if b.Insert(999999, rid.RID{PageID: 1}) {
		t.Fatal("Insert() into a full bucket should fail")
	}
}

func TestBucketPageGetExistedDataSnapshotsLiveEntries(t *testing.T) {
	b := newBucket()
	b.Insert(1, rid.RID{PageID: 1, SlotNum: 0})
	b.Insert(2, rid.RID{PageID: 2, SlotNum: 0})
	b.Remove(1, rid.RID{PageID: 1, SlotNum: 0})

	entries := b.GetExistedData()
	if len(entries) != 1 || entries[0].Key != 2 {
		t.Fatalf("GetExistedData() = %v, want one entry with key 2", entries)
	}
}

func TestBucketPageInsertReusesTombstonedSlot(t *testing.T) {
	b := newBucket()
	for i := 0; i < BucketArraySize; i++ {
		if !b.Insert(int64(i), rid.RID{PageID: storage.PageID(i), SlotNum: 0}) {
			t.Fatalf("Insert() failed at slot %d filling the bucket", i)
		}
	}
	if !b.Remove(0, rid.RID{PageID: 0, SlotNum: 0}) {
		t.Fatal("Remove() of slot 0's entry should succeed")
	}
	if b.IsFull() {
		t.Fatal("IsFull() should be false after a Remove() leaves one tombstoned slot")
	}
	if !b.Insert(999999, rid.RID{PageID: 999}) {
		t.Fatal("Insert() should reuse the tombstoned slot rather than reporting the bucket full")
	}
	if !b.IsFull() {
		t.Fatal("bucket should be full again after the tombstoned slot is reused")
	}
}

func TestBucketPageResetClearsTombstones(t *testing.T) {
	b := newBucket()
	b.Insert(1, rid.RID{PageID: 1, SlotNum: 0})
	b.Remove(1, rid.RID{PageID: 1, SlotNum: 0})
	b.Reset()

	if !b.IsEmpty() || b.occupied(0) {
		t.Fatal("Reset() should clear both readable and occupied bits")
	}
	if !b.Insert(1, rid.RID{PageID: 1, SlotNum: 0}) {
		t.Fatal("Insert() after Reset() should succeed into the now-free slot")
	}
}
