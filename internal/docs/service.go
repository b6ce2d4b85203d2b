// Package docs implements the serialized write path: load, catch-up
// transform, compose, version-gated commit, log append, bounded retry.
package docs

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"collab-docs/internal/store"
	"collab-docs/pkg/delta"
)

// DefaultMaxRetries bounds the commit retry loop.
const DefaultMaxRetries = 5

var (
	// ErrVersionAhead reports a client baseVersion beyond the server's
	// version. The client is corrupt or replaying; not retriable.
	ErrVersionAhead = errors.New("client version is ahead of the server")
	// ErrTooMuchContention reports an exhausted commit retry budget.
	ErrTooMuchContention = errors.New("too much contention on document")
)

// Result is a successfully applied operation: the delta that actually
// composed into the snapshot and the version it produced.
type Result struct {
	Delta   delta.Delta
	Version int
}

// Service applies client operations to documents. It holds no per-document
// state; serialization comes from the caller's lock and, as the correctness
// backstop, the store's version gate.
type Service struct {
	store      store.Store
	maxRetries int
	onConflict func()
	log        *log.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries overrides the commit retry budget.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithConflictHook registers a callback invoked on every version-gate miss.
func WithConflictHook(fn func()) Option {
	return func(s *Service) { s.onConflict = fn }
}

// NewService returns a Service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		maxRetries: DefaultMaxRetries,
		log:        log.WithField("component", "docs"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyOperation threads clientDelta through every operation committed since
// clientVersion, composes it into the snapshot behind the version gate, and
// appends it to the log. On a gate miss it restarts from the load, at most
// maxRetries times, then reports ErrTooMuchContention.
//
// The returned delta is the transformed one, which is also what peers must
// receive.
func (s *Service) ApplyOperation(ctx context.Context, docID string, clientDelta delta.Delta, clientVersion int, userID, connID string) (*Result, error) {
	if err := clientDelta.Validate(); err != nil {
		return nil, err
	}
	if clientVersion < 0 {
		return nil, delta.ErrMalformed
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		doc, err := s.store.Load(ctx, docID)
		if err != nil {
			return nil, err
		}
		if clientVersion > doc.Version {
			return nil, ErrVersionAhead
		}

		transformed := clientDelta
		if clientVersion < doc.Version {
			entries, err := s.store.OpsSince(ctx, docID, clientVersion)
			if err != nil {
				return nil, err
			}
			committed := make([]delta.Delta, len(entries))
			for i, e := range entries {
				committed[i] = e.Delta
			}
			transformed = delta.TransformAll(clientDelta, committed)
		}

		newContent := delta.Compose(doc.Content, transformed)
		newVersion := doc.Version + 1

		err = s.store.Commit(ctx, docID, doc.Version, newContent, newVersion)
		if errors.Is(err, store.ErrConflict) {
			// Another writer won the race; reload and retry.
			if s.onConflict != nil {
				s.onConflict()
			}
			s.log.WithFields(log.Fields{
				"doc":     docID,
				"version": doc.Version,
				"attempt": attempt + 1,
			}).Debug("commit conflict, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		err = s.store.AppendLog(ctx, store.OpLogEntry{
			DocID:     docID,
			Version:   newVersion,
			Delta:     transformed,
			UserID:    userID,
			ConnID:    connID,
			Timestamp: time.Now(),
		})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		return &Result{Delta: transformed, Version: newVersion}, nil
	}
	return nil, ErrTooMuchContention
}
