package cache

import "sort"

// Index is the in-memory lookup over the cache snapshot: uuid to item and
// text hash to uuid. Both maps are only ever mutated together through Put
// and Remove so they cannot drift apart. The index is not safe for
// concurrent use; the manager serializes access.
type Index struct {
	entries    map[string]*CacheItem
	byTextHash map[string]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		entries:    make(map[string]*CacheItem),
		byTextHash: make(map[string]string),
	}
}

// Rebuild replaces the index contents with the items of a loaded snapshot.
// The text-hash map is rederived from the entries, which heals any drift a
// persisted index may carry.
func (ix *Index) Rebuild(snap *Snapshot) {
	ix.entries = make(map[string]*CacheItem, len(snap.Entries))
	ix.byTextHash = make(map[string]string, len(snap.Entries))
	for _, item := range snap.Entries {
		ix.Put(item)
	}
}

// Put inserts or replaces an item, updating both maps. A changed text hash
// on an existing uuid drops the stale hash mapping.
func (ix *Index) Put(item *CacheItem) {
	if item.Utterance.TextHash == "" {
		item.Utterance.TextHash = hashString(item.Utterance.Text)
	}
	if item.VoiceAudio == nil {
		item.VoiceAudio = make(map[string]*AudioEntry)
	}
	if prev, ok := ix.entries[item.UUID]; ok && prev.Utterance.TextHash != item.Utterance.TextHash {
		delete(ix.byTextHash, prev.Utterance.TextHash)
	}
	ix.entries[item.UUID] = item
	ix.byTextHash[item.Utterance.TextHash] = item.UUID
}

// Remove deletes the item with the given uuid from both maps and returns it.
func (ix *Index) Remove(uuid string) (*CacheItem, bool) {
	item, ok := ix.entries[uuid]
	if !ok {
		return nil, false
	}
	delete(ix.entries, uuid)
	if ix.byTextHash[item.Utterance.TextHash] == uuid {
		delete(ix.byTextHash, item.Utterance.TextHash)
	}
	return item, true
}

// ByUUID looks up an item by its uuid.
func (ix *Index) ByUUID(uuid string) (*CacheItem, bool) {
	item, ok := ix.entries[uuid]
	return item, ok
}

// ByText looks up an item by the hash of its raw text.
func (ix *Index) ByText(text string) (*CacheItem, bool) {
	uuid, ok := ix.byTextHash[hashString(text)]
	if !ok {
		return nil, false
	}
	return ix.ByUUID(uuid)
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Items returns all indexed items in unspecified order.
func (ix *Index) Items() []*CacheItem {
	items := make([]*CacheItem, 0, len(ix.entries))
	for _, item := range ix.entries {
		items = append(items, item)
	}
	return items
}

// Voices returns the sorted set of voice keys that have audio anywhere in
// the index.
func (ix *Index) Voices() []string {
	seen := make(map[string]struct{})
	for _, item := range ix.entries {
		for key, entry := range item.VoiceAudio {
			if len(entry.Descriptors) > 0 {
				seen[key] = struct{}{}
			}
		}
	}
	voices := make([]string, 0, len(seen))
	for key := range seen {
		voices = append(voices, key)
	}
	sort.Strings(voices)
	return voices
}

// Snapshot builds the persistable form of the index.
func (ix *Index) Snapshot() *Snapshot {
	snap := &Snapshot{
		Entries:   make(map[string]*CacheItem, len(ix.entries)),
		TextIndex: make(map[string]string, len(ix.byTextHash)),
	}
	for uuid, item := range ix.entries {
		snap.Entries[uuid] = item
	}
	for hash, uuid := range ix.byTextHash {
		snap.TextIndex[hash] = uuid
	}
	return snap
}
