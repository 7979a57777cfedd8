// Package rid defines the record id shared by the hash index (as the value
// half of its key/value slots) and the lock manager (as its lock-table key).
package rid

import (
	"fmt"

	"github.com/relcore/relcore/pkg/storage"
)

// RID identifies one row: the page it lives on plus its slot number within
// that page. It is opaque to both the hash index and the lock manager —
// neither interprets it beyond equality comparison.
type RID struct {
	PageID  storage.PageID
	SlotNum uint32
}

// Invalid is the zero-value sentinel RID, matching no real row.
var Invalid = RID{PageID: storage.InvalidPageID}

// Valid reports whether r refers to a real page.
func (r RID) Valid() bool { return r.PageID.Valid() }

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.SlotNum)
}
