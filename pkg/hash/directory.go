// Package hash implements an extendible hash index persisted in buffer-pool
// pages: one directory page fans out to many bucket pages, each bucket
// splitting or merging as entries are inserted and removed.
package hash

import (
	"encoding/binary"
	"fmt"
)

// MaxGlobalDepth bounds the directory at 2^9 = 512 entries, the largest
// size whose bucket_page_ids + local_depths arrays fit in one 4096-byte
// page alongside the header fields (see directory on-disk layout below).
const MaxGlobalDepth = 9

// DirectorySize is the maximum number of directory entries, 2^MaxGlobalDepth.
const DirectorySize = 1 << MaxGlobalDepth

// Directory on-disk layout, little-endian, matching the buffer pool's flat
// PageSize-byte Page.Data():
//
//	offset 0:    4 bytes  page id
//	offset 4:    4 bytes  LSN (reserved, unused by this index)
//	offset 8:    4 bytes  global depth (only the low byte is meaningful)
//	offset 12:   2048 bytes  bucket_page_ids[0..512), 4 bytes each
//	offset 2060: 512 bytes   local_depths[0..512), 1 byte each
const (
	dirOffsetPageID      = 0
	dirOffsetLSN         = 4
	dirOffsetGlobalDepth = 8
	dirOffsetBucketIDs   = 12
	dirOffsetLocalDepths = dirOffsetBucketIDs + DirectorySize*4
)

// DirectoryPage is a view over a page's raw bytes, interpreting them as an
// extendible hash directory. It carries no synchronization of its own: the
// caller holds the owning page's latch for the duration of any mutation.
type DirectoryPage struct {
	data []byte
}

// NewDirectoryPage wraps buf (must be storage.PageSize bytes) as a directory
// view. The page is not otherwise initialized; callers format a fresh page
// with Reset.
func NewDirectoryPage(buf []byte) *DirectoryPage {
	return &DirectoryPage{data: buf}
}

// Reset formats buf as an empty directory: global depth 0, one bucket (index
// 0) pointing at rootBucketID with local depth 0, and clears the rest.
func (d *DirectoryPage) Reset(pageID int32, rootBucketID int32) {
	for i := range d.data {
		d.data[i] = 0
	}
	d.SetPageID(pageID)
	d.SetGlobalDepth(0)
	d.SetBucketPageID(0, rootBucketID)
	d.SetLocalDepth(0, 0)
}

// PageID returns this directory page's own page id.
func (d *DirectoryPage) PageID() int32 {
	return int32(binary.LittleEndian.Uint32(d.data[dirOffsetPageID:]))
}

// SetPageID records this directory page's own page id.
func (d *DirectoryPage) SetPageID(id int32) {
	binary.LittleEndian.PutUint32(d.data[dirOffsetPageID:], uint32(id))
}

// GlobalDepth returns the number of hash bits currently used to index the
// directory.
func (d *DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.data[dirOffsetGlobalDepth:]) & 0xff
}

// SetGlobalDepth overwrites the global depth field.
func (d *DirectoryPage) SetGlobalDepth(gd uint32) {
	binary.LittleEndian.PutUint32(d.data[dirOffsetGlobalDepth:], gd&0xff)
}

// Size returns the number of directory entries currently addressable,
// 2^GlobalDepth.
func (d *DirectoryPage) Size() uint32 {
	return 1 << d.GlobalDepth()
}

// GlobalDepthMask is (1<<GD)-1, the bits of a hash that select a directory
// index.
func (d *DirectoryPage) GlobalDepthMask() uint32 {
	return d.Size() - 1
}

// LocalDepthMask is (1<<LD[i])-1, the bits of a hash that bucket i actually
// distinguishes.
func (d *DirectoryPage) LocalDepthMask(i uint32) uint32 {
	return (1 << d.LocalDepth(i)) - 1
}

// IndexOf maps a key's hash to a directory index under the current global
// depth.
func (d *DirectoryPage) IndexOf(hash uint32) uint32 {
	return hash & d.GlobalDepthMask()
}

func (d *DirectoryPage) bucketOffset(i uint32) int {
	return dirOffsetBucketIDs + int(i)*4
}

// BucketPageID returns the page id of the bucket directory index i points at.
func (d *DirectoryPage) BucketPageID(i uint32) int32 {
	return int32(binary.LittleEndian.Uint32(d.data[d.bucketOffset(i):]))
}

// SetBucketPageID points directory index i at bucketID.
func (d *DirectoryPage) SetBucketPageID(i uint32, bucketID int32) {
	binary.LittleEndian.PutUint32(d.data[d.bucketOffset(i):], uint32(bucketID))
}

// LocalDepth returns the local depth of the bucket directory index i points at.
func (d *DirectoryPage) LocalDepth(i uint32) uint8 {
	return d.data[dirOffsetLocalDepths+int(i)]
}

// SetLocalDepth sets the local depth recorded at directory index i.
func (d *DirectoryPage) SetLocalDepth(i uint32, ld uint8) {
	d.data[dirOffsetLocalDepths+int(i)] = ld
}

// IncrGlobalDepth doubles the directory: every index i's bucket id and
// local depth are copied to index i+2^GD, then GD is incremented. The
// caller must check GlobalDepth() < MaxGlobalDepth first.
func (d *DirectoryPage) IncrGlobalDepth() {
	gd := d.GlobalDepth()
	size := uint32(1) << gd
	for i := uint32(0); i < size; i++ {
		d.SetBucketPageID(i+size, d.BucketPageID(i))
		d.SetLocalDepth(i+size, d.LocalDepth(i))
	}
	d.SetGlobalDepth(gd + 1)
}

// DecrGlobalDepth halves the directory; the upper half becomes unaddressable
// (its bytes are left in place but no longer read).
func (d *DirectoryPage) DecrGlobalDepth() {
	gd := d.GlobalDepth()
	if gd == 0 {
		return
	}
	d.SetGlobalDepth(gd - 1)
}

// CanShrink reports whether every addressable bucket's local depth is
// strictly less than the global depth, i.e. DecrGlobalDepth would not
// strand any bucket whose upper-half index is still load-bearing.
func (d *DirectoryPage) CanShrink() bool {
	size := d.Size()
	for i := uint32(0); i < size; i++ {
		if d.LocalDepth(i) >= uint8(d.GlobalDepth()) {
			return false
		}
	}
	return true
}

// SplitImageIndex returns the sibling directory index produced when the
// bucket at i last split: i with its (LD[i]-1)-th bit flipped. LD[i] must
// be at least 1.
func (d *DirectoryPage) SplitImageIndex(i uint32) uint32 {
	ld := d.LocalDepth(i)
	if ld == 0 {
		return i
	}
	return i ^ (1 << (ld - 1))
}

// VerifyIntegrity checks the invariants every directory must satisfy:
// every local depth is at most the global depth, every pair of indices
// sharing a bucket page id share a local depth, and every bucket page id
// appears exactly 2^(GD-LD) times.
func (d *DirectoryPage) VerifyIntegrity() error {
	gd := d.GlobalDepth()
	size := d.Size()
	ldByBucket := make(map[int32]uint8)
	countByBucket := make(map[int32]uint32)

	for i := uint32(0); i < size; i++ {
		ld := d.LocalDepth(i)
		if ld > uint8(gd) {
			return fmt.Errorf("local depth %d at index %d exceeds global depth %d", ld, i, gd)
		}
		bucketID := d.BucketPageID(i)
		if existingLD, ok := ldByBucket[bucketID]; ok && existingLD != ld {
			return fmt.Errorf("bucket %d has inconsistent local depths %d and %d", bucketID, existingLD, ld)
		}
		ldByBucket[bucketID] = ld
		countByBucket[bucketID]++
	}

	for bucketID, ld := range ldByBucket {
		want := uint32(1) << (gd - uint32(ld))
		if countByBucket[bucketID] != want {
			return fmt.Errorf("bucket %d appears %d times in directory, want %d (gd=%d, ld=%d)",
				bucketID, countByBucket[bucketID], want, gd, ld)
		}
	}
	return nil
}
