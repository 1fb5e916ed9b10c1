package simhash

import "sync"

// MinWords is the shortest description worth fingerprinting. Short texts
// such as "Сдам офис" collide between unrelated listings.
const MinWords = 12

// Index remembers description fingerprints of one run. It is safe for
// concurrent use.
type Index struct {
	mu        sync.Mutex
	threshold int
	entries   []indexEntry
}

type indexEntry struct {
	fp  uint64
	key string
}

// NewIndex returns an Index that treats fingerprints within threshold
// bits as the same description. A negative threshold disables matching.
func NewIndex(threshold int) *Index {
	return &Index{threshold: threshold}
}

// Add records text under key and returns the key of the first earlier
// entry with a similar description, if any. Texts shorter than MinWords
// are ignored.
func (x *Index) Add(key, text string) (string, bool) {
	if x.threshold < 0 || len(Words(text)) < MinWords {
		return "", false
	}
	fp := Description(text)

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.entries {
		if e.key != key && Similar(e.fp, fp, x.threshold) {
			x.entries = append(x.entries, indexEntry{fp: fp, key: key})
			return e.key, true
		}
	}
	x.entries = append(x.entries, indexEntry{fp: fp, key: key})
	return "", false
}

// Len returns the number of recorded descriptions.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
