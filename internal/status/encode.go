// internal/status/encode.go
package status

import "fmt"

// Encode reduces a report to its counts.
// No IO. No side effects.
func Encode(r *Report) Snapshot {
	var s Snapshot
	for _, it := range r.Items() {
		switch it.State {
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		case StateSkipped:
			s.Skipped++
		case StateMismatch:
			s.Mismatch++
		}
	}
	return s
}

// Summary is the one-line form printed by the CLI.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("%d completed, %d failed, %d skipped, %d mismatched", s.Completed, s.Failed, s.Skipped, s.Mismatch)
}
