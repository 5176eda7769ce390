package cache

import "sort"

// Eviction walks items in a deterministic order (oldest first or least
// used first) and selects a minimal prefix whose audio covers a byte
// target. Items are always evicted whole; a single item's audio is never
// partially deleted.

// sortByLastAccess returns the items sorted ascending by last access time,
// oldest first. The input slice is not modified.
func sortByLastAccess(items []*CacheItem) []*CacheItem {
	sorted := append([]*CacheItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LastAccess.Equal(sorted[j].LastAccess) {
			return sorted[i].UUID < sorted[j].UUID
		}
		return sorted[i].LastAccess.Before(sorted[j].LastAccess)
	})
	return sorted
}

// sortByUsage returns the items sorted ascending by usage count, least
// used first. The input slice is not modified.
func sortByUsage(items []*CacheItem) []*CacheItem {
	sorted := append([]*CacheItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UsageCount == sorted[j].UsageCount {
			return sorted[i].UUID < sorted[j].UUID
		}
		return sorted[i].UsageCount < sorted[j].UsageCount
	})
	return sorted
}

// collectForSize walks the ordered items and accumulates those carrying
// audio until the accumulated audio size reaches target. The last selected
// item is counted in full even when it overshoots the target. If the cache
// holds less audio than target, every item with audio is selected. A
// target of zero or less selects nothing.
func collectForSize(target int64, ordered []*CacheItem) []*CacheItem {
	if target <= 0 {
		return nil
	}
	var collected int64
	var selected []*CacheItem
	for _, item := range ordered {
		size := item.AudioSize()
		if size > 0 {
			collected += size
			selected = append(selected, item)
		}
		if collected >= target {
			break
		}
	}
	return selected
}
