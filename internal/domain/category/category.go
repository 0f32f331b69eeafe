// Package category enumerates the speedrun categories the bot tracks and
// the per-category thresholds a live run must meet to be announced.
package category

import "strings"

// Category is a tracked speedrun category.
type Category int

// Known categories. Unknown is the fallback for anything unrecognised and
// never has a threshold.
const (
	Unknown Category = iota
	Star0
	Star1
	Star16
	Star70
	Star120
)

var labels = map[Category]string{
	Star0:   "0 Star",
	Star1:   "1 Star",
	Star16:  "16 Star",
	Star70:  "70 Star",
	Star120: "120 Star",
}

// All returns the known categories, excluding Unknown.
func All() []Category {
	return []Category{Star120, Star70, Star16, Star1, Star0}
}

// String returns the canonical label, or "unknown".
func (c Category) String() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return "unknown"
}

// Parse maps a canonical label (case-insensitive) to its Category.
func Parse(label string) (Category, bool) {
	label = strings.TrimSpace(label)
	for c, l := range labels {
		if strings.EqualFold(l, label) {
			return c, true
		}
	}
	return Unknown, false
}

// Classify returns the category whose label is the longest prefix of the
// reported category string, or Unknown.
func Classify(reported string) Category {
	best, bestLen := Unknown, 0
	for c, l := range labels {
		if len(l) > bestLen && strings.HasPrefix(reported, l) {
			best, bestLen = c, len(l)
		}
	}
	return best
}
