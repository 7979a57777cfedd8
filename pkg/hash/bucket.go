package hash

import (
	"encoding/binary"

	"github.com/relcore/relcore/pkg/rid"
	"github.com/relcore/relcore/pkg/storage"
)

// slotSize is the on-page size of one (key, value) slot: an 8-byte int64
// key plus an 8-byte RID value (4-byte page id, 4-byte slot number).
const slotSize = 16

// BucketArraySize is the largest N such that ceil(N/8)*2 + N*slotSize fits
// in one PageSize-byte page: N=252 fills the page exactly (32+32+252*16 =
// 4096), so the bucket on-disk layout below has no reserved tail.
const BucketArraySize = 252

const (
	bucketOffsetOccupied = 0
	bucketBitmapBytes    = (BucketArraySize + 7) / 8
	bucketOffsetReadable = bucketOffsetOccupied + bucketBitmapBytes
	bucketOffsetSlots    = bucketOffsetReadable + bucketBitmapBytes
)

// BucketPage is a view over a page's raw bytes, interpreting them as a
// hash bucket: two bitmaps (occupied, readable) packed 8 slots per byte,
// followed by BucketArraySize fixed-width (key, value) slots. No
// synchronization of its own: the caller holds the owning page's exclusive
// latch for any mutating call.
type BucketPage struct {
	data []byte
}

// NewBucketPage wraps buf (must be storage.PageSize bytes) as a bucket view.
func NewBucketPage(buf []byte) *BucketPage {
	return &BucketPage{data: buf}
}

// Reset clears every slot, emptying the bucket.
func (b *BucketPage) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
}

func bitGet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

func bitSet(bitmap []byte, i int, v bool) {
	mask := byte(1 << uint(i%8))
	if v {
		bitmap[i/8] |= mask
	} else {
		bitmap[i/8] &^= mask
	}
}

func (b *BucketPage) occupied(i int) bool {
	return bitGet(b.data[bucketOffsetOccupied:bucketOffsetReadable], i)
}

func (b *BucketPage) setOccupied(i int, v bool) {
	bitSet(b.data[bucketOffsetOccupied:bucketOffsetReadable], i, v)
}

func (b *BucketPage) readable(i int) bool {
	return bitGet(b.data[bucketOffsetReadable:bucketOffsetSlots], i)
}

func (b *BucketPage) setReadable(i int, v bool) {
	bitSet(b.data[bucketOffsetReadable:bucketOffsetSlots], i, v)
}

func (b *BucketPage) slotOffset(i int) int {
	return bucketOffsetSlots + i*slotSize
}

// KeyAt returns the key stored in slot i, valid only if IsReadable(i).
func (b *BucketPage) KeyAt(i int) int64 {
	off := b.slotOffset(i)
	return int64(binary.LittleEndian.Uint64(b.data[off:]))
}

// ValueAt returns the value stored in slot i, valid only if IsReadable(i).
func (b *BucketPage) ValueAt(i int) rid.RID {
	off := b.slotOffset(i) + 8
	return rid.RID{
		PageID:  storage.PageID(int32(binary.LittleEndian.Uint32(b.data[off:]))),
		SlotNum: binary.LittleEndian.Uint32(b.data[off+4:]),
	}
}

func (b *BucketPage) setSlot(i int, key int64, value rid.RID) {
	off := b.slotOffset(i)
	binary.LittleEndian.PutUint64(b.data[off:], uint64(key))
	binary.LittleEndian.PutUint32(b.data[off+8:], uint32(int32(value.PageID)))
	binary.LittleEndian.PutUint32(b.data[off+12:], value.SlotNum)
}

// IsReadable reports whether slot i currently holds a live entry.
func (b *BucketPage) IsReadable(i int) bool { return b.readable(i) }

// IsFull reports whether every slot is readable.
func (b *BucketPage) IsFull() bool {
	return b.NumReadable() == BucketArraySize
}

// IsEmpty reports whether no slot is readable.
func (b *BucketPage) IsEmpty() bool {
	return b.NumReadable() == 0
}

// NumReadable counts live slots.
func (b *BucketPage) NumReadable() int {
	n := 0
	for i := 0; i < BucketArraySize; i++ {
		if b.readable(i) {
			n++
		}
	}
	return n
}

// Insert adds (key, value) to the first free slot — the first slot that is
// not currently readable, whether never used or a tombstone left by a prior
// Remove. Returns false if the exact pair is already present, or if the
// bucket is full.
func (b *BucketPage) Insert(key int64, value rid.RID) bool {
	freeSlot := -1
	for i := 0; i < BucketArraySize; i++ {
		if b.readable(i) {
			if b.KeyAt(i) == key && b.ValueAt(i) == value {
				return false
			}
			continue
		}
		if freeSlot == -1 {
			freeSlot = i
		}
	}
	if freeSlot == -1 {
		return false
	}
	b.setSlot(freeSlot, key, value)
	b.setOccupied(freeSlot, true)
	b.setReadable(freeSlot, true)
	return true
}

// GetValue appends every live value whose key equals key to out, returning
// the extended slice and whether at least one match was found.
func (b *BucketPage) GetValue(key int64, out []rid.RID) ([]rid.RID, bool) {
	found := false
	for i := 0; i < BucketArraySize; i++ {
		if b.readable(i) && b.KeyAt(i) == key {
			out = append(out, b.ValueAt(i))
			found = true
		}
	}
	return out, found
}

// Remove clears the readable bit of the live slot matching both key and
// value, leaving its occupied bit set as a tombstone. Returns whether a
// matching slot was found.
func (b *BucketPage) Remove(key int64, value rid.RID) bool {
	for i := 0; i < BucketArraySize; i++ {
		if b.readable(i) && b.KeyAt(i) == key && b.ValueAt(i) == value {
			b.setReadable(i, false)
			return true
		}
	}
	return false
}

// Entry is one live (key, value) pair, used to snapshot a bucket during split.
type Entry struct {
	Key   int64
	Value rid.RID
}

// GetExistedData snapshots every live entry, used while redistributing a
// bucket's contents during a split.
func (b *BucketPage) GetExistedData() []Entry {
	entries := make([]Entry, 0, b.NumReadable())
	for i := 0; i < BucketArraySize; i++ {
		if b.readable(i) {
			entries = append(entries, Entry{Key: b.KeyAt(i), Value: b.ValueAt(i)})
		}
	}
	return entries
}
