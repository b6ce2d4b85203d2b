// Package store persists document snapshots and the append-only operation
// log, and exposes the conditional-update primitive that serializes
// concurrent writers (the version gate).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collab-docs/pkg/delta"
)

var (
	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrConflict reports a version-gate miss: the document moved past the
	// expected version. Not a failure; callers retry.
	ErrConflict = errors.New("version conflict")
	// ErrDuplicate reports an operation log entry whose (docID, version)
	// already exists.
	ErrDuplicate = errors.New("duplicate log entry")
	// ErrExists reports a document id that is already taken.
	ErrExists = errors.New("document already exists")
)

// Document is a snapshot of a collaborative document. Content is a delta of
// inserts whose length equals the document length; Version counts committed
// operations and equals the highest version in the log.
type Document struct {
	ID            string      `json:"id" bson:"_id" db:"id"`
	Title         string      `json:"title" bson:"title" db:"title"`
	Content       delta.Delta `json:"content" bson:"content" db:"-"`
	Version       int         `json:"version" bson:"version" db:"version"`
	CreatedBy     string      `json:"createdBy" bson:"createdBy" db:"created_by"`
	Collaborators []string    `json:"collaborators" bson:"collaborators" db:"-"`
	CreatedAt     time.Time   `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// CanEdit reports whether userID is the owner or a collaborator.
func (d *Document) CanEdit(userID string) bool {
	if d.CreatedBy == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// OpLogEntry is one committed operation. Version is the document version
// AFTER the delta applied, so the first committed op has version 1. Delta is
// the transformed delta that actually composed into the snapshot, never the
// client's pre-transform submission. Entries are immutable once written.
type OpLogEntry struct {
	DocID     string      `json:"docId" bson:"docId"`
	Version   int         `json:"version" bson:"version"`
	Delta     delta.Delta `json:"delta" bson:"delta"`
	UserID    string      `json:"userId" bson:"userId"`
	ConnID    string      `json:"connId" bson:"connId"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

// Store is the persistence contract for documents and their operation logs.
// Commit is the only mutator of a document's version.
type Store interface {
	// Create inserts doc, which must start at version 0. ErrExists on a
	// taken id.
	Create(ctx context.Context, doc *Document) error

	// Load returns the current snapshot and version, or ErrNotFound.
	Load(ctx context.Context, docID string) (*Document, error)

	// OpsSince returns log entries with version > fromVersion in ascending
	// version order.
	OpsSince(ctx context.Context, docID string, fromVersion int) ([]OpLogEntry, error)

	// Commit atomically replaces the snapshot only while the stored version
	// still equals expectedVersion; any other observed state returns
	// ErrConflict without mutating. newVersion must be expectedVersion+1.
	Commit(ctx context.Context, docID string, expectedVersion int, newContent delta.Delta, newVersion int) error

	// AppendLog appends entry, or returns ErrDuplicate when its
	// (docID, version) is already present. The log is append-only.
	AppendLog(ctx context.Context, entry OpLogEntry) error
}

// checkVersions guards the Commit contract shared by all implementations.
func checkVersions(expectedVersion, newVersion int) error {
	if expectedVersion < 0 {
		return fmt.Errorf("negative expected version %d", expectedVersion)
	}
	if newVersion != expectedVersion+1 {
		return fmt.Errorf("new version %d must follow expected version %d", newVersion, expectedVersion)
	}
	return nil
}
