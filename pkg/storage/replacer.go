package storage

import "container/list"

// FrameID identifies a frame slot inside a BufferPoolInstance.
type FrameID int

// LRUReplacer tracks frames that are resident and currently unpinned, and
// hands out the least-recently-unpinned one as an eviction victim. Frames
// are kept in a doubly linked list (front = most recently unpinned, back =
// next victim) alongside a map from frame id to list element so Pin,
// Unpin, and Victim are all O(1).
type LRUReplacer struct {
	capacity int
	order    *list.List
	index    map[FrameID]*list.Element
}

// NewLRUReplacer creates a replacer that can track at most capacity frames.
func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[FrameID]*list.Element, capacity),
	}
}

// Victim removes and returns the least-recently-unpinned frame, or false if
// the replacer currently tracks no frames.
func (r *LRUReplacer) Victim() (FrameID, bool) {
	back := r.order.Back()
	if back == nil {
		return 0, false
	}
	frameID := back.Value.(FrameID)
	r.order.Remove(back)
	delete(r.index, frameID)
	return frameID, true
}

// Pin removes frameID from the replacer, if present, marking it ineligible
// for eviction. A no-op if the frame is not currently tracked.
func (r *LRUReplacer) Pin(frameID FrameID) {
	elem, ok := r.index[frameID]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.index, frameID)
}

// Unpin makes frameID eligible for eviction again. If frameID is already
// tracked this is a no-op (the distilled design's resolution of the
// "already present" open question, see SPEC_FULL.md §9). If the replacer is
// at capacity, the current victim candidate is dropped to make room.
func (r *LRUReplacer) Unpin(frameID FrameID) {
	if _, ok := r.index[frameID]; ok {
		return
	}
	if r.capacity > 0 && r.order.Len() >= r.capacity {
		if back := r.order.Back(); back != nil {
			delete(r.index, back.Value.(FrameID))
			r.order.Remove(back)
		}
	}
	r.index[frameID] = r.order.PushFront(frameID)
}

// Size returns the number of frames currently tracked by the replacer.
func (r *LRUReplacer) Size() int {
	return r.order.Len()
}
