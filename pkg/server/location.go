package server

import (
	"sync"

	"github.com/vango-dev/statekit/pkg/urlsync"
)

// ClientLocation is the urlsync.Location of a remote browser tab. Reads are
// answered from the last URL the client reported; Replace is forwarded to
// the client as a replace message.
type ClientLocation struct {
	mu   sync.Mutex
	href string
	send func(*Message)
}

// NewClientLocation creates a location that forwards writes to send.
func NewClientLocation(href string, send func(*Message)) *ClientLocation {
	return &ClientLocation{href: href, send: send}
}

// Href implements urlsync.Location.
func (l *ClientLocation) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.href
}

// Report records a URL the client navigated to.
func (l *ClientLocation) Report(href string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.href = href
}

// Replace implements urlsync.Location.
func (l *ClientLocation) Replace(fragment string) {
	l.mu.Lock()
	l.href = urlsync.ReplaceFragment(l.href, fragment)
	href := l.href
	l.mu.Unlock()

	l.send(&Message{Type: TypeReplace, Hash: fragment, Href: href})
}
