package category

// Threshold is the eligibility bar for one category.
type Threshold struct {
	// MinPercentage is the minimum completion fraction (0..1), inclusive.
	MinPercentage float64
	// MaxBPT is the maximum best possible time in milliseconds, inclusive.
	MaxBPT int64
}

// Table maps categories to thresholds. It is immutable after construction
// and safe for concurrent reads.
type Table struct {
	entries map[Category]Threshold
}

// NewTable builds a Table from entries. Entries for Unknown are ignored.
func NewTable(entries map[Category]Threshold) Table {
	t := Table{entries: make(map[Category]Threshold, len(entries))}
	for c, th := range entries {
		if c == Unknown {
			continue
		}
		t.entries[c] = th
	}
	return t
}

// Lookup returns the threshold for c. Unknown and unconfigured categories
// report false.
func (t Table) Lookup(c Category) (Threshold, bool) {
	th, ok := t.entries[c]
	return th, ok
}

// Len returns the number of configured categories.
func (t Table) Len() int { return len(t.entries) }
