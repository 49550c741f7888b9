package eventmap

// Change is the before and after value of one key.
type Change struct {
	OldValue any
	NewValue any
}

// Changes maps keys to their change.
type Changes map[string]Change

// Diff returns the keys whose value differs between the two snapshots, or
// nil if none does. A key absent from a snapshot has a nil value.
func Diff(keys []string, newState, oldState Snapshot) Changes {
	var changes Changes
	for _, k := range keys {
		oldVal, newVal := oldState[k], newState[k]
		if Equal(oldVal, newVal) {
			continue
		}
		if changes == nil {
			changes = Changes{}
		}
		changes[k] = Change{OldValue: oldVal, NewValue: newVal}
	}
	return changes
}
