package storage

import (
	"fmt"
	"sync"
)

// BufferPoolInstance caches a bounded number of disk pages in a fixed array
// of frames, coordinating with a DiskManager and an LRUReplacer to decide
// what stays resident. All operations are serialized by a single instance
// mutex (SPEC_FULL.md §5): the page table, free list, and replacer are
// touched only while holding it.
//
// Victims come from a two-tier policy (the free list first, then the LRU
// replacer), and every resident page carries its own pin count.
type BufferPoolInstance struct {
	mu        sync.Mutex
	disk      DiskManager
	frames    []Page
	pageTable map[PageID]FrameID
	freeList  []FrameID
	replacer  *LRUReplacer

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewBufferPoolInstance creates an instance with poolSize frames backed by disk.
func NewBufferPoolInstance(poolSize int, disk DiskManager) *BufferPoolInstance {
	bp := &BufferPoolInstance{
		disk:      disk,
		frames:    make([]Page, poolSize),
		pageTable: make(map[PageID]FrameID, poolSize),
		replacer:  NewLRUReplacer(poolSize),
	}
	bp.freeList = make([]FrameID, poolSize)
	for i := range bp.freeList {
		bp.freeList[i] = FrameID(i)
		bp.frames[i].id = InvalidPageID
	}
	return bp
}

// PoolSize returns the number of frames this instance manages.
func (bp *BufferPoolInstance) PoolSize() int { return len(bp.frames) }

// victimFrame picks a frame to reuse: the free list first, then the
// replacer. Returns false if every frame is pinned.
func (bp *BufferPoolInstance) victimFrame() (FrameID, bool) {
	if n := len(bp.freeList); n > 0 {
		frameID := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return frameID, true
	}
	return bp.replacer.Victim()
}

// evict prepares frameID for reuse: if it currently holds a dirty resident
// page, flush it to disk, then remove that page from the page table.
func (bp *BufferPoolInstance) evict(frameID FrameID) error {
	frame := &bp.frames[frameID]
	if frame.id.Valid() {
		if frame.isDirty {
			if err := bp.disk.WritePage(frame.id, frame.Data()); err != nil {
				return fmt.Errorf("flush victim page %d: %w", frame.id, err)
			}
		}
		delete(bp.pageTable, frame.id)
		bp.evictions++
	}
	return nil
}

// FetchPage returns the page for pageID, pinning it. If the page is not
// resident, a victim frame is evicted (free list first, then LRU) and the
// page is read from disk. Returns nil if every frame is pinned.
func (bp *BufferPoolInstance) FetchPage(pageID PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTable[pageID]; ok {
		frame := &bp.frames[frameID]
		frame.pinCount++
		bp.replacer.Pin(frameID)
		bp.hits++
		return frame, nil
	}

	frameID, ok := bp.victimFrame()
	if !ok {
		bp.misses++
		return nil, nil
	}
	if err := bp.evict(frameID); err != nil {
		return nil, err
	}

	frame := &bp.frames[frameID]
	frame.reset(pageID)
	if err := bp.disk.ReadPage(pageID, frame.Data()); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}
	bp.pageTable[pageID] = frameID
	bp.misses++
	return frame, nil
}

// NewPage allocates a fresh page id from the disk manager, installs it in a
// victim frame without reading from disk, and returns it pinned.
func (bp *BufferPoolInstance) NewPage() (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.victimFrame()
	if !ok {
		return nil, nil
	}
	if err := bp.evict(frameID); err != nil {
		return nil, err
	}

	pageID, err := bp.disk.AllocatePage()
	if err != nil {
		// Undo the victim selection: the frame was never repurposed.
		bp.freeList = append(bp.freeList, frameID)
		return nil, fmt.Errorf("allocate page: %w", err)
	}

	frame := &bp.frames[frameID]
	frame.reset(pageID)
	bp.pageTable[pageID] = frameID
	return frame, nil
}

// UnpinPage decrements pageID's pin count, OR-combining isDirty into the
// frame's dirty flag. Returns false if the page is not resident or its pin
// count is already zero.
func (bp *BufferPoolInstance) UnpinPage(pageID PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}
	frame := &bp.frames[frameID]
	if frame.pinCount == 0 {
		return false
	}
	if isDirty {
		frame.isDirty = true
	}
	frame.pinCount--
	if frame.pinCount == 0 {
		bp.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes pageID's current bytes to disk regardless of its dirty
// flag, then clears it. Returns false if the page is invalid or not
// resident.
func (bp *BufferPoolInstance) FlushPage(pageID PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushLocked(pageID)
}

func (bp *BufferPoolInstance) flushLocked(pageID PageID) bool {
	if !pageID.Valid() {
		return false
	}
	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}
	frame := &bp.frames[frameID]
	if err := bp.disk.WritePage(pageID, frame.Data()); err != nil {
		return false
	}
	frame.isDirty = false
	return true
}

// FlushAllPages writes every resident page to disk.
func (bp *BufferPoolInstance) FlushAllPages() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for pageID := range bp.pageTable {
		bp.flushLocked(pageID)
	}
}

// DeletePage removes pageID from the buffer pool and returns its frame and
// disk space to the free pools. Fails (returns false) only if the page is
// resident and pinned; deleting a nonresident page is a no-op success.
func (bp *BufferPoolInstance) DeletePage(pageID PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, ok := bp.pageTable[pageID]
	if !ok {
		return true
	}
	frame := &bp.frames[frameID]
	if frame.pinCount > 0 {
		return false
	}
	if frame.isDirty {
		if err := bp.disk.WritePage(pageID, frame.Data()); err != nil {
			return false
		}
	}
	bp.replacer.Pin(frameID) // no-op if not tracked; ensures it isn't a victim candidate mid-delete
	delete(bp.pageTable, pageID)
	frame.id = InvalidPageID
	frame.isDirty = false
	frame.pinCount = 0
	bp.freeList = append(bp.freeList, frameID)

	_ = bp.disk.DeallocatePage(pageID)
	return true
}

// Stats reports hit/miss/eviction counters and occupancy, consumed by the
// admin /_stats route.
func (bp *BufferPoolInstance) Stats() map[string]any {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return map[string]any{
		"pool_size": len(bp.frames),
		"resident":  len(bp.pageTable),
		"hits":      bp.hits,
		"misses":    bp.misses,
		"evictions": bp.evictions,
	}
}
