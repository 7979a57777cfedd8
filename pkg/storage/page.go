package storage

import "sync"

// PageSize is the size of each page in bytes.
const PageSize = 4096

// InvalidPageID marks an uninitialized or nonexistent page.
const InvalidPageID PageID = -1

// PageID identifies a page on disk. A 32-bit signed integer so that
// InvalidPageID can be represented as -1, matching the on-disk directory
// and bucket page layouts which store page ids in 4 bytes.
type PageID int32

// Valid reports whether id is usable as a real page reference.
func (id PageID) Valid() bool {
	return id != InvalidPageID
}

// Page is a fixed-size in-memory slot holding one disk page's raw bytes,
// plus the bookkeeping the buffer pool needs to manage it: dirty flag,
// pin count, and a reader/writer latch for concurrent structural access
// (the hash table takes this latch per page; the buffer pool never does).
//
// Page carries no back-pointer to its buffer pool or frame: the pool owns
// all Page values in a fixed arena and hands out borrows guarded by the
// pin count, so a Page can never outlive the slot backing it without the
// caller holding a pin.
type Page struct {
	id       PageID
	data     [PageSize]byte
	isDirty  bool
	pinCount int
	latch    sync.RWMutex
}

// ID returns the page id currently occupying this slot.
func (p *Page) ID() PageID { return p.id }

// Data returns the mutable content bytes of the page. Callers reinterpret
// these bytes as a directory page, bucket page, or other on-page layout.
func (p *Page) Data() []byte { return p.data[:] }

// IsDirty reports whether the page has unflushed writes.
func (p *Page) IsDirty() bool { return p.isDirty }

// PinCount returns the page's current pin count.
func (p *Page) PinCount() int { return p.pinCount }

// RLock/RUnlock/Lock/Unlock expose the page's reader/writer latch used by
// the extendible hash table to guard concurrent bucket/directory mutation.
// These are independent of the buffer pool instance mutex (see §5 of the
// design: latches and locks form a strict hierarchy, and a page's own
// latch sits below the buffer pool instance mutex in that hierarchy).
func (p *Page) RLock()   { p.latch.RLock() }
func (p *Page) RUnlock() { p.latch.RUnlock() }
func (p *Page) Lock()    { p.latch.Lock() }
func (p *Page) Unlock()  { p.latch.Unlock() }

// reset reinitializes the slot for reuse by a new page id, zeroing content.
func (p *Page) reset(id PageID) {
	p.id = id
	for i := range p.data {
		p.data[i] = 0
	}
	p.isDirty = false
	p.pinCount = 1
}
