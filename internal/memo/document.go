package memo

import "sync"

// Document is the memo buffer of one session. Every change swaps the whole text.
type Document struct {
	mu   sync.RWMutex
	text string
}

func NewDocument() *Document {
	return &Document{}
}

func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Replace installs a manually edited buffer.
func (d *Document) Replace(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}

// Insert merges a suggestion and returns the new buffer.
func (d *Document) Insert(suggestion string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = Merge(d.text, suggestion)
	return d.text
}
