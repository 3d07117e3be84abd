// internal/status/snapshot.go
package status

// Snapshot is a count of report items by state.
// It contains no logic and is safe to copy.
type Snapshot struct {
	Completed int
	Failed    int
	Skipped   int
	Mismatch  int
}

// Total is the number of items counted.
func (s Snapshot) Total() int { return s.Completed + s.Failed + s.Skipped + s.Mismatch }
