package hashlist

import "dmmsync/internal/media"

// Filter removes every blacklisted hash from entries and reports how many
// were removed. The map is modified in place and returned for chaining.
func Filter(entries map[string]media.Entry, blacklist map[string]struct{}) (map[string]media.Entry, int) {
	if len(blacklist) == 0 || len(entries) == 0 {
		return entries, 0
	}
	removed := 0
	// Walk the smaller side.
	if len(blacklist) < len(entries) {
		for hash := range blacklist {
			if _, ok := entries[hash]; ok {
				delete(entries, hash)
				removed++
			}
		}
		return entries, removed
	}
	for hash := range entries {
		if _, ok := blacklist[hash]; ok {
			delete(entries, hash)
			removed++
		}
	}
	return entries, removed
}
