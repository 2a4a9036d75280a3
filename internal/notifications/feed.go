package notifications

import (
	"maps"

	"github.com/agroconexion/storefront-sync/internal/backend"
)

// Feed is the ordered notification list, newest first, unique by id.
// It is not safe for concurrent use; Stream guards it.
type Feed struct {
	items []backend.Notification
}

func cloneNotification(n backend.Notification) backend.Notification {
	if n.Read != nil {
		read := *n.Read
		n.Read = &read
	}
	if n.Data != nil {
		n.Data = maps.Clone(n.Data)
	}
	return n
}

func (f *Feed) indexOf(id int64) int {
	for i, item := range f.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Seed merges the authoritative snapshot into the feed. Push events that
// arrived before the snapshot and are absent from it stay on top; for ids
// present in both the snapshot wins.
func (f *Feed) Seed(snapshot []backend.Notification) {
	inSnapshot := make(map[int64]struct{}, len(snapshot))
	for _, n := range snapshot {
		inSnapshot[n.ID] = struct{}{}
	}

	merged := make([]backend.Notification, 0, len(f.items)+len(snapshot))
	seen := make(map[int64]struct{}, len(f.items)+len(snapshot))
	for _, n := range f.items {
		if _, ok := inSnapshot[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, n)
	}
	for _, n := range snapshot {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		merged = append(merged, cloneNotification(n))
	}
	f.items = merged
}

// Prepend adds n on top. It returns false and leaves the feed unchanged when
// the id is already present.
func (f *Feed) Prepend(n backend.Notification) bool {
	if f.indexOf(n.ID) >= 0 {
		return false
	}
	f.items = append([]backend.Notification{cloneNotification(n)}, f.items...)
	return true
}

// Remove deletes the item with id and reports where it was.
func (f *Feed) Remove(id int64) (backend.Notification, int, bool) {
	idx := f.indexOf(id)
	if idx < 0 {
		return backend.Notification{}, -1, false
	}
	removed := f.items[idx]
	f.items = append(f.items[:idx:idx], f.items[idx+1:]...)
	return removed, idx, true
}

// Insert puts n back at idx, clamped to the feed bounds. Duplicates are ignored.
func (f *Feed) Insert(n backend.Notification, idx int) {
	if f.indexOf(n.ID) >= 0 {
		return
	}
	if idx < 0 || idx > len(f.items) {
		idx = len(f.items)
	}
	f.items = append(f.items, backend.Notification{})
	copy(f.items[idx+1:], f.items[idx:])
	f.items[idx] = n
}

// MarkAllRead flags every item read and returns the previous read state by id.
func (f *Feed) MarkAllRead() map[int64]*bool {
	previous := make(map[int64]*bool, len(f.items))
	for i := range f.items {
		previous[f.items[i].ID] = f.items[i].Read
		read := true
		f.items[i].Read = &read
	}
	return previous
}

// RestoreRead puts back read flags captured by MarkAllRead. Items that
// arrived since are left alone.
func (f *Feed) RestoreRead(previous map[int64]*bool) {
	for i := range f.items {
		if read, ok := previous[f.items[i].ID]; ok {
			f.items[i].Read = read
		}
	}
}

// UnreadCount counts items whose read flag is not true.
func (f *Feed) UnreadCount() int {
	count := 0
	for _, n := range f.items {
		if n.Read == nil || !*n.Read {
			count++
		}
	}
	return count
}

func (f *Feed) Len() int {
	return len(f.items)
}

// Items returns a deep copy of the feed.
func (f *Feed) Items() []backend.Notification {
	out := make([]backend.Notification, len(f.items))
	for i, n := range f.items {
		out[i] = cloneNotification(n)
	}
	return out
}
