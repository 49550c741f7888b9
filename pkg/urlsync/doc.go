// Package urlsync keeps a state store and a URL fragment consistent.
//
// State is serialized as a query-string shaped fragment after a base marker:
//
//	#array=is%7Carray%7Cvalue&bodystyle=sierra_1500
//
// Sequence values are joined with a delimiter ("|" by default) before
// escaping and split again on read.
//
// A Syncer seeds the store from the URL when it is created, runs the URL
// through the store's full validation pipeline once the page has loaded and
// on every external navigation, and rewrites the fragment after each
// successful commit. Fragments the Syncer wrote itself are never treated as
// navigation.
//
// Example:
//
//	loc := urlsync.NewMemoryLocation("https://example.com/build#brand=gmc")
//	sync := urlsync.New(state.Default(), loc)
//	sync.Loaded(ctx)
//
//	// Later, when the browser reports a hash change:
//	sync.Navigated(ctx, newHref)
package urlsync
