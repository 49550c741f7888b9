package urlsync

import (
	"strings"
	"sync"
)

// Location is the browser location a Syncer reads and writes.
type Location interface {
	// Href returns the full current URL.
	Href() string

	// Replace swaps the current URL for fragment without adding a history
	// entry. A fragment starting with "#" replaces only the hash; one
	// starting with "?" replaces the query and hash.
	Replace(fragment string)
}

// MemoryLocation is an in-process Location.
type MemoryLocation struct {
	mu       sync.Mutex
	href     string
	replaced []string
}

// NewMemoryLocation creates a location at href.
func NewMemoryLocation(href string) *MemoryLocation {
	return &MemoryLocation{href: href}
}

// Href returns the current URL.
func (l *MemoryLocation) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.href
}

// Hash returns the "#..." part of the URL, or "".
func (l *MemoryLocation) Hash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := strings.IndexByte(l.href, '#'); i >= 0 {
		return l.href[i:]
	}
	return ""
}

// Navigate moves to href as if the user had edited the address bar.
func (l *MemoryLocation) Navigate(href string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.href = href
}

// Replace implements Location.
func (l *MemoryLocation) Replace(fragment string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.href = ReplaceFragment(l.href, fragment)
	l.replaced = append(l.replaced, fragment)
}

// Replaced returns every fragment passed to Replace, oldest first.
func (l *MemoryLocation) Replaced() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.replaced...)
}

// ReplaceFragment returns href with fragment applied the way
// window.location.replace resolves a relative reference.
func ReplaceFragment(href, fragment string) string {
	switch {
	case strings.HasPrefix(fragment, "#"):
		if i := strings.IndexByte(href, '#'); i >= 0 {
			href = href[:i]
		}
		return href + fragment
	case strings.HasPrefix(fragment, "?"):
		if i := strings.IndexAny(href, "?#"); i >= 0 {
			href = href[:i]
		}
		return href + fragment
	}
	return fragment
}
