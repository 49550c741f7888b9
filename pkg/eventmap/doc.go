// Package eventmap provides an observable key/value map.
//
// A Map keeps a "last known good" snapshot of its contents that is rebuilt
// after every mutation, and notifies subscribers by event kind:
//
//	m := eventmap.New()
//	sub := m.On(eventmap.EventSet, func(ev eventmap.Event, newState, oldState eventmap.Snapshot) {
//	    fmt.Println(ev, oldState["brand"], "->", newState["brand"])
//	})
//	defer sub.Destroy()
//
//	m.Set("brand", "gmc", true)
//
// Subscribing immediately invokes the callback once with the current
// snapshot and an empty prior state, so late subscribers can initialise
// without a separate bootstrap call.
//
// Batch operations (Replace, Merge, Del, Clear) fire exactly one
// notification per call regardless of how many keys they touch. Setting a
// key to a value equal to the one it already holds is a no-op.
//
// Notifications are delivered in the order mutations are applied: a
// mutation does not return, and the next one does not start, until every
// subscriber has seen it. Callbacks may read the map and subscribe or
// unsubscribe, but must not mutate the map synchronously.
//
// Snapshots passed to subscribers and returned by GetAll are shared and
// must be treated as read-only.
package eventmap
