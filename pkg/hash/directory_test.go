package hash

import (
	"testing"

	"github.com/relcore/relcore/pkg/storage"
)

func newDirectory() *DirectoryPage {
	buf := make([]byte, storage.PageSize)
	d := NewDirectoryPage(buf)
	d.Reset(0, 1)
	return d
}

func TestDirectoryPageResetAndAccessors(t *testing.T) {
	d := newDirectory()
	if d.GlobalDepth() != 0 {
		t.Fatalf("GlobalDepth() = %d, want 0", d.GlobalDepth())
	}
	if d.BucketPageID(0) != 1 {
		t.Fatalf("BucketPageID(0) = %d, want 1", d.BucketPageID(0))
	}
	if d.LocalDepth(0) != 0 {
		t.Fatalf("LocalDepth(0) = %d, want 0", d.LocalDepth(0))
	}
}

func TestDirectoryPageIncrGlobalDepthDuplicatesLowerHalf(t *testing.T) {
	d := newDirectory()
	d.SetBucketPageID(0, 5)
	d.SetLocalDepth(0, 1)
	d.IncrGlobalDepth()

	if d.GlobalDepth() != 1 {
		t.Fatalf("GlobalDepth() = %d, want 1", d.GlobalDepth())
	}
	if d.BucketPageID(1) != 5 {
		t.Fatalf("BucketPageID(1) = %d, want 5 (duplicated from index 0)", d.BucketPageID(1))
	}
	if d.LocalDepth(1) != 1 {
		t.Fatalf("LocalDepth(1) = %d, want 1", d.LocalDepth(1))
	}
}

func TestDirectoryPageIndexOfMasksToGlobalDepth(t *testing.T) {
	d := newDirectory()
	d.SetGlobalDepth(3)
	if got := d.IndexOf(0b1111); got != 0b111 {
		t.Fatalf("IndexOf(0b1111) = %b, want 0b111", got)
	}
}

func TestDirectoryPageCanShrink(t *testing.T) {
	d := newDirectory()
	d.SetGlobalDepth(2)
	d.SetLocalDepth(0, 1)
	d.SetLocalDepth(1, 1)
	d.SetLocalDepth(2, 1)
	d.SetLocalDepth(3, 1)
	if !d.CanShrink() {
		t.Fatal("CanShrink() = false, want true when every local depth < global depth")
	}

	d.SetLocalDepth(1, 2)
	if d.CanShrink() {
		t.Fatal("CanShrink() = true, want false when one local depth equals global depth")
	}
}

func TestDirectoryPageSplitImageIndex(t *testing.T) {
	d := newDirectory()
	d.SetGlobalDepth(2)
	d.SetLocalDepth(1, 2)
	// LD=2 at index 1 (binary 01): split image flips bit (1<<(2-1))=bit 1 -> 01 ^ 10 = 11 (3).
	if got := d.SplitImageIndex(1); got != 3 {
		t.Fatalf("SplitImageIndex(1) = %d, want 3", got)
	}
}

func TestDirectoryPageVerifyIntegrityCatchesDepthMismatch(t *testing.T) {
	d := newDirectory()
	d.SetGlobalDepth(1)
	d.SetBucketPageID(0, 1)
	d.SetLocalDepth(0, 1)
	d.SetBucketPageID(1, 1)
	d.SetLocalDepth(1, 0) // same bucket, different local depth: invalid

	if err := d.VerifyIntegrity(); err == nil {
		t.Fatal("VerifyIntegrity() should reject a bucket with inconsistent local depths")
	}
}

func TestDirectoryPageVerifyIntegrityValid(t *testing.T) {
	d := newDirectory()
	d.SetGlobalDepth(1)
	d.SetBucketPageID(0, 1)
	d.SetLocalDepth(0, 1)
	d.SetBucketPageID(1, 2)
	d.SetLocalDepth(1, 1)

	if err := d.VerifyIntegrity(); err != nil {
		t.Fatalf("VerifyIntegrity() = %v, want nil", err)
	}
}

func TestDirectoryPageVerifyIntegrityCountMismatch(t *testing.T) {
	d := newDirectory()
	d.SetGlobalDepth(2)
	// Bucket 1 should appear 2^(2-1)=2 times but appears once here; the
	// remaining three entries point at distinct buckets with LD=2.
	d.SetBucketPageID(0, 1)
	d.SetLocalDepth(0, 1)
	d.SetBucketPageID(1, 2)
	d.SetLocalDepth(1, 2)
	d.SetBucketPageID(2, 3)
	d.SetLocalDepth(2, 2)
	d.SetBucketPageID(3, 4)
	d.SetLocalDepth(3, 2)

	if err := d.VerifyIntegrity(); err == nil {
		t.Fatal("VerifyIntegrity() should reject a bucket whose directory count doesn't match 2^(GD-LD)")
	}
}
