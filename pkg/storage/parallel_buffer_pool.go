package storage

import "sync"

// ParallelBufferPool shards pages across a fixed number of independent
// BufferPoolInstances by page id. Routing is the pure modulus
// (SPEC_FULL.md §9) rather than a hash, since page ids must round-trip
// through AllocatePage's residue-class guarantee.
type ParallelBufferPool struct {
	instances []*BufferPoolInstance

	mu         sync.Mutex
	nextCursor int
}

// NewParallelBufferPool creates numInstances buffer pool instances, each of
// poolSize frames, each backed by its own DiskManager produced by newDisk.
// Every instance's DiskManager is wrapped so AllocatePage hands out ids in
// the arithmetic progression i, i+numInstances, i+2*numInstances, ... —
// instance i owns exactly the ids congruent to i mod numInstances, so
// FetchPage/NewPage routing by page_id mod num_instances always lands on
// the instance that allocated the page.
func NewParallelBufferPool(numInstances, poolSize int, newDisk func(instance int) DiskManager) *ParallelBufferPool {
	instances := make([]*BufferPoolInstance, numInstances)
	for i := range instances {
		residue := &residueDiskManager{
			DiskManager: newDisk(i),
			residue:     PageID(i),
			modulus:     PageID(numInstances),
		}
		instances[i] = NewBufferPoolInstance(poolSize, residue)
	}
	return &ParallelBufferPool{instances: instances}
}

// residueDiskManager wraps a DiskManager so every id it allocates is
// congruent to residue mod modulus, by rescaling the underlying manager's
// own sequential ids: its k-th allocation becomes id residue + k*modulus.
// DeallocatePage reverses the same mapping before delegating.
type residueDiskManager struct {
	DiskManager
	residue PageID
	modulus PageID
}

func (r *residueDiskManager) AllocatePage() (PageID, error) {
	id, err := r.DiskManager.AllocatePage()
	if err != nil {
		return InvalidPageID, err
	}
	return r.residue + id*r.modulus, nil
}

func (r *residueDiskManager) DeallocatePage(pageID PageID) error {
	return r.DiskManager.DeallocatePage((pageID - r.residue) / r.modulus)
}

func (r *residueDiskManager) ReadPage(pageID PageID, buf []byte) error {
	return r.DiskManager.ReadPage((pageID-r.residue)/r.modulus, buf)
}

func (r *residueDiskManager) WritePage(pageID PageID, buf []byte) error {
	return r.DiskManager.WritePage((pageID-r.residue)/r.modulus, buf)
}

// NumInstances returns the number of sharded instances.
func (p *ParallelBufferPool) NumInstances() int { return len(p.instances) }

func (p *ParallelBufferPool) instanceFor(pageID PageID) *BufferPoolInstance {
	idx := int(pageID) % len(p.instances)
	if idx < 0 {
		idx += len(p.instances)
	}
	return p.instances[idx]
}

// FetchPage routes to page_id mod num_instances.
func (p *ParallelBufferPool) FetchPage(pageID PageID) (*Page, error) {
	return p.instanceFor(pageID).FetchPage(pageID)
}

// UnpinPage routes to page_id mod num_instances.
func (p *ParallelBufferPool) UnpinPage(pageID PageID, isDirty bool) bool {
	return p.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

// FlushPage routes to page_id mod num_instances.
func (p *ParallelBufferPool) FlushPage(pageID PageID) bool {
	return p.instanceFor(pageID).FlushPage(pageID)
}

// DeletePage routes to page_id mod num_instances.
func (p *ParallelBufferPool) DeletePage(pageID PageID) bool {
	return p.instanceFor(pageID).DeletePage(pageID)
}

// NewPage allocates a page round-robin across instances: starting at the
// cursor, it tries each instance in turn until one succeeds (has a free
// frame or an evictable one), advancing the cursor past the instance that
// succeeded. Returns nil if every instance is exhausted (all frames pinned
// everywhere).
func (p *ParallelBufferPool) NewPage() (*Page, error) {
	p.mu.Lock()
	start := p.nextCursor
	p.mu.Unlock()

	n := len(p.instances)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		page, err := p.instances[idx].NewPage()
		if err != nil {
			return nil, err
		}
		if page != nil {
			p.mu.Lock()
			p.nextCursor = (idx + 1) % n
			p.mu.Unlock()
			return page, nil
		}
	}
	return nil, nil
}

// FlushAllPages fans out to every instance.
func (p *ParallelBufferPool) FlushAllPages() {
	for _, inst := range p.instances {
		inst.FlushAllPages()
	}
}

// Stats aggregates per-instance stats, consumed by the admin /_stats route.
func (p *ParallelBufferPool) Stats() map[string]any {
	perInstance := make([]map[string]any, len(p.instances))
	for i, inst := range p.instances {
		perInstance[i] = inst.Stats()
	}
	return map[string]any{
		"num_instances": len(p.instances),
		"instances":     perInstance,
	}
}
