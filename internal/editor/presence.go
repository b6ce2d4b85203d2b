package editor

import (
	"sync"
	"time"
)

// CursorState is the last reported cursor range for one connection in one
// document. Cursor data is a hint: it is not ordered relative to ops and is
// never persisted.
type CursorState struct {
	ConnID    string
	UserID    string
	Range     *Range
	UpdatedAt time.Time
}

// Presence tracks cursor ranges per document so late joiners can render
// existing cursors without waiting for the next update.
type Presence struct {
	mu    sync.RWMutex
	byDoc map[string]map[string]*CursorState
}

// NewPresence returns an empty presence tracker.
func NewPresence() *Presence {
	return &Presence{byDoc: make(map[string]map[string]*CursorState)}
}

// Update records the cursor range for a connection. A nil range means the
// cursor left the visible document area and is forwarded as such.
func (p *Presence) Update(docID, connID, userID string, r *Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc := p.byDoc[docID]
	if doc == nil {
		doc = make(map[string]*CursorState)
		p.byDoc[docID] = doc
	}
	doc[connID] = &CursorState{
		ConnID:    connID,
		UserID:    userID,
		Range:     r,
		UpdatedAt: time.Now(),
	}
}

// Remove drops the cursor state for a connection in a document.
func (p *Presence) Remove(docID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc := p.byDoc[docID]
	if doc == nil {
		return
	}
	delete(doc, connID)
	if len(doc) == 0 {
		delete(p.byDoc, docID)
	}
}

// Snapshot returns the cursor states for a document, excluding one
// connection (the requester).
func (p *Presence) Snapshot(docID, excludeConnID string) []CursorState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []CursorState
	for connID, cs := range p.byDoc[docID] {
		if connID != excludeConnID {
			out = append(out, *cs)
		}
	}
	return out
}

// SweepStale removes cursor states older than maxAge. The service runs this
// periodically; a cursor that outlives its connection is removed on
// disconnect anyway, so this only catches leaks.
func (p *Presence) SweepStale(maxAge time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for docID, doc := range p.byDoc {
		for connID, cs := range doc {
			if cs.UpdatedAt.Before(cutoff) {
				delete(doc, connID)
			}
		}
		if len(doc) == 0 {
			delete(p.byDoc, docID)
		}
	}
}
