package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskManager is the external collaborator the buffer pool reads pages from
// and writes pages to. It models the disk I/O primitives this repository's
// storage core consumes but does not itself implement: no error return is
// modelled on the read/write path in the distilled design, but this
// expansion returns errors instead of panicking so a caller can decide how
// to react (see SPEC_FULL.md §7 for why the demo command still treats a
// non-nil error here as fatal).
type DiskManager interface {
	// ReadPage fills buf (which must be len PageSize) with the on-disk
	// content of page_id.
	ReadPage(pageID PageID, buf []byte) error
	// WritePage persists buf (len PageSize) as the content of page_id.
	WritePage(pageID PageID, buf []byte) error
	// AllocatePage returns a fresh page id, reusing a freed one if available.
	AllocatePage() (PageID, error)
	// DeallocatePage returns pageID to the free list for future reuse.
	DeallocatePage(pageID PageID) error
}

// FileDiskManager is a single-file-backed DiskManager. Page pageID lives at
// byte offset pageID*PageSize in the backing file, matching the fixed-slot
// layout this codebase's own DiskManager uses.
type FileDiskManager struct {
	mu          sync.Mutex
	file        *os.File
	nextPageID  PageID
	freeList    []PageID
	totalReads  int64
	totalWrites int64
	compress    bool

	// offsets/nextOffset track where each page's compressed bytes live in
	// the backing file when compress is true, since compressed pages no
	// longer occupy a fixed PageSize slot (see disk_manager_compress.go).
	offsets    map[PageID]compressedSlot
	nextOffset int64
}

// NewFileDiskManager opens (creating if necessary) the data file at path.
func NewFileDiskManager(path string) (*FileDiskManager, error) {
	return newFileDiskManager(path, false)
}

// NewCompressingFileDiskManager is like NewFileDiskManager but zstd-compresses
// each page's bytes before the on-disk write, using the klauspost/compress
// zstd codec. It is off by
// default (see SPEC_FULL.md §10.2): a compressed page no longer occupies a
// fixed PageSize slot, so this implementation keeps a side table of
// compressed-page offsets rather than relying on pageID*PageSize arithmetic.
func NewCompressingFileDiskManager(path string) (*FileDiskManager, error) {
	return newFileDiskManager(path, true)
}

func newFileDiskManager(path string, compress bool) (*FileDiskManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat data file: %w", err)
	}
	dm := &FileDiskManager{
		file:       f,
		nextPageID: PageID(info.Size() / PageSize),
		compress:   compress,
	}
	if compress {
		dm.offsets = make(map[PageID]compressedSlot)
		dm.nextOffset = 0
	}
	return dm, nil
}

func (dm *FileDiskManager) ReadPage(pageID PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.compress {
		return dm.readCompressed(pageID, buf)
	}

	if len(buf) != PageSize {
		return fmt.Errorf("read page %d: buffer must be %d bytes, got %d", pageID, PageSize, len(buf))
	}
	offset := int64(pageID) * PageSize
	n, err := dm.file.ReadAt(buf, offset)
	if err != nil && n < PageSize {
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("read page %d: %w", pageID, err)
		}
		for i := n; i < PageSize; i++ {
			buf[i] = 0
		}
	}
	dm.totalReads++
	return nil
}

func (dm *FileDiskManager) WritePage(pageID PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.compress {
		return dm.writeCompressed(pageID, buf)
	}

	if len(buf) != PageSize {
		return fmt.Errorf("write page %d: buffer must be %d bytes, got %d", pageID, PageSize, len(buf))
	}
	offset := int64(pageID) * PageSize
	if _, err := dm.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("write page %d: %w", pageID, err)
	}
	dm.totalWrites++
	return nil
}

func (dm *FileDiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.freeList); n > 0 {
		id := dm.freeList[n-1]
		dm.freeList = dm.freeList[:n-1]
		return id, nil
	}
	id := dm.nextPageID
	dm.nextPageID++
	return id, nil
}

func (dm *FileDiskManager) DeallocatePage(pageID PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pageID < 0 || pageID >= dm.nextPageID {
		return fmt.Errorf("deallocate page %d: out of range", pageID)
	}
	dm.freeList = append(dm.freeList, pageID)
	if dm.compress {
		delete(dm.offsets, pageID)
	}
	return nil
}

// Sync flushes the backing file to stable storage.
func (dm *FileDiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Sync()
}

// Close syncs and closes the backing file.
func (dm *FileDiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.file.Sync(); err != nil {
		return err
	}
	return dm.file.Close()
}

// Stats reports disk manager counters, consumed by the admin /_stats route.
func (dm *FileDiskManager) Stats() map[string]any {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return map[string]any{
		"next_page_id": dm.nextPageID,
		"free_pages":   len(dm.freeList),
		"total_reads":  dm.totalReads,
		"total_writes": dm.totalWrites,
		"compressed":   dm.compress,
	}
}

// MemDiskManager is an in-process DiskManager backed by a map, used by
// the buffer pool, hash table and server tests so they never touch the
// filesystem (SPEC_FULL.md §10.3). The disk manager's own tests exercise
// FileDiskManager in a temporary directory.
type MemDiskManager struct {
	mu         sync.Mutex
	pages      map[PageID][PageSize]byte
	nextPageID PageID
	freeList   []PageID
}

// NewMemDiskManager returns an empty in-memory disk manager.
func NewMemDiskManager() *MemDiskManager {
	return &MemDiskManager{pages: make(map[PageID][PageSize]byte)}
}

func (dm *MemDiskManager) ReadPage(pageID PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(buf) != PageSize {
		return fmt.Errorf("read page %d: buffer must be %d bytes, got %d", pageID, PageSize, len(buf))
	}
	data, ok := dm.pages[pageID]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, data[:])
	return nil
}

func (dm *MemDiskManager) WritePage(pageID PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(buf) != PageSize {
		return fmt.Errorf("write page %d: buffer must be %d bytes, got %d", pageID, PageSize, len(buf))
	}
	var data [PageSize]byte
	copy(data[:], buf)
	dm.pages[pageID] = data
	return nil
}

func (dm *MemDiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if n := len(dm.freeList); n > 0 {
		id := dm.freeList[n-1]
		dm.freeList = dm.freeList[:n-1]
		return id, nil
	}
	id := dm.nextPageID
	dm.nextPageID++
	return id, nil
}

func (dm *MemDiskManager) DeallocatePage(pageID PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if pageID < 0 || pageID >= dm.nextPageID {
		return fmt.Errorf("deallocate page %d: out of range", pageID)
	}
	delete(dm.pages, pageID)
	dm.freeList = append(dm.freeList, pageID)
	return nil
}
