package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"collab-docs/pkg/delta"
)

// Memory is an in-process Store. It backs single-node deployments and is
// the fake the tests inject.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*Document
	logs map[string][]OpLogEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*Document),
		logs: make(map[string][]OpLogEntry),
	}
}

func (m *Memory) Create(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return ErrExists
	}
	now := time.Now()
	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	m.docs[doc.ID] = &cp
	return nil
}

func (m *Memory) Load(ctx context.Context, docID string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	cp.Collaborators = append([]string(nil), doc.Collaborators...)
	return &cp, nil
}

func (m *Memory) OpsSince(ctx context.Context, docID string, fromVersion int) ([]OpLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OpLogEntry
	for _, e := range m.logs[docID] {
		if e.Version > fromVersion {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) Commit(ctx context.Context, docID string, expectedVersion int, newContent delta.Delta, newVersion int) error {
	if err := checkVersions(expectedVersion, newVersion); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return ErrNotFound
	}
	if doc.Version != expectedVersion {
		return ErrConflict
	}
	doc.Content = newContent
	doc.Version = newVersion
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AppendLog(ctx context.Context, entry OpLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.logs[entry.DocID] {
		if e.Version == entry.Version {
			return ErrDuplicate
		}
	}
	m.logs[entry.DocID] = append(m.logs[entry.DocID], entry)
	return nil
}
