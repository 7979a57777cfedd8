package storage

import "testing"

func TestBufferPoolInstanceNewPageAndFetch(t *testing.T) {
	bp := NewBufferPoolInstance(3, NewMemDiskManager())

	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if page == nil {
		t.Fatal("NewPage() returned nil with frames available")
	}
	id := page.ID()
	page.Data()[0] = 0x7A
	if !bp.UnpinPage(id, true) {
		t.Fatal("UnpinPage() on freshly pinned page should succeed")
	}

	fetched, err := bp.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if fetched == nil {
		t.Fatal("FetchPage() returned nil for resident page")
	}
	if fetched.Data()[0] != 0x7A {
		t.Fatalf("FetchPage() byte 0 = %#x, want 0x7A", fetched.Data()[0])
	}
	bp.UnpinPage(id, false)
}

func TestBufferPoolInstanceFetchMiss(t *testing.T) {
	disk := NewMemDiskManager()
	bp := NewBufferPoolInstance(2, disk)

	// Allocate a page directly on disk so it exists but isn't resident.
	id, err := disk.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage() error = %v", err)
	}
	buf := make([]byte, PageSize)
	buf[10] = 0x55
	if err := disk.WritePage(id, buf); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	page, err := bp.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page == nil {
		t.Fatal("FetchPage() returned nil; expected a disk read into a free frame")
	}
	if page.Data()[10] != 0x55 {
		t.Fatalf("FetchPage() byte 10 = %#x, want 0x55", page.Data()[10])
	}
}

func TestBufferPoolInstanceExhaustedAllPinned(t *testing.T) {
	bp := NewBufferPoolInstance(2, NewMemDiskManager())

	if _, err := bp.NewPage(); err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if _, err := bp.NewPage(); err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}

	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if page != nil {
		t.Fatal("NewPage() should return nil when every frame is pinned")
	}
}

func TestBufferPoolInstanceEvictsUnpinnedLRU(t *testing.T) {
	bp := NewBufferPoolInstance(1, NewMemDiskManager())

	first, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	firstID := first.ID()
	bp.UnpinPage(firstID, false)

	second, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if second == nil {
		t.Fatal("NewPage() should evict the unpinned frame and succeed")
	}
	if second.ID() == firstID {
		t.Fatal("NewPage() should have allocated a distinct page id")
	}

	if _, err := bp.FetchPage(firstID); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
}

func TestBufferPoolInstanceUnpinUnknownPage(t *testing.T) {
	bp := NewBufferPoolInstance(2, NewMemDiskManager())
	if bp.UnpinPage(999, false) {
		t.Fatal("UnpinPage() of a nonresident page should return false")
	}
}

func TestBufferPoolInstanceDeletePinnedFails(t *testing.T) {
	bp := NewBufferPoolInstance(2, NewMemDiskManager())
	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if bp.DeletePage(page.ID()) {
		t.Fatal("DeletePage() of a still-pinned page should fail")
	}
}

func TestBufferPoolInstanceDeleteFreesFrame(t *testing.T) {
	bp := NewBufferPoolInstance(1, NewMemDiskManager())
	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	id := page.ID()
	bp.UnpinPage(id, false)

	if !bp.DeletePage(id) {
		t.Fatal("DeletePage() of an unpinned resident page should succeed")
	}

	// The freed frame must be immediately reusable even though the replacer
	// had nothing unpinned to evict.
	again, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	if again == nil {
		t.Fatal("NewPage() should reuse the frame freed by DeletePage()")
	}
}

func TestBufferPoolInstanceDeleteNonresidentIsNoop(t *testing.T) {
	bp := NewBufferPoolInstance(2, NewMemDiskManager())
	if !bp.DeletePage(42) {
		t.Fatal("DeletePage() of a nonresident page should succeed as a no-op")
	}
}

func TestBufferPoolInstanceFlushAllPages(t *testing.T) {
	disk := NewMemDiskManager()
	bp := NewBufferPoolInstance(2, disk)

	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	id := page.ID()
	page.Data()[0] = 0x9
	bp.UnpinPage(id, true)

	bp.FlushAllPages()

	buf := make([]byte, PageSize)
	if err := disk.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if buf[0] != 0x9 {
		t.Fatalf("FlushAllPages() did not persist dirty page: byte 0 = %#x, want 0x9", buf[0])
	}
}

func TestBufferPoolInstanceStats(t *testing.T) {
	bp := NewBufferPoolInstance(2, NewMemDiskManager())
	page, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage() error = %v", err)
	}
	bp.UnpinPage(page.ID(), false)
	if _, err := bp.FetchPage(page.ID()); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	stats := bp.Stats()
	if stats["pool_size"].(int) != 2 {
		t.Fatalf("Stats()[pool_size] = %v, want 2", stats["pool_size"])
	}
	if stats["hits"].(uint64) != 1 {
		t.Fatalf("Stats()[hits] = %v, want 1", stats["hits"])
	}
}
