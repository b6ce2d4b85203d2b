// Package collab is the client-side collaboration core: three state cells
// (knownVersion, inFlightOp, pendingOp) driven by editor and server events.
// It guarantees at most one operation is outstanding per document and keeps
// the local optimistic view convergent with the server.
//
// The core is owned by the editor's event loop: events arrive one at a time
// at well-defined boundaries, so it takes no locks.
package collab

import (
	"collab-docs/pkg/delta"
)

// Sender is the outbound half of the duplex channel.
type Sender interface {
	// SendOp submits a local delta against the given base version.
	SendOp(docID string, d delta.Delta, baseVersion int) error
	// JoinDoc (re)joins a document, asking for a replay from fromVersion.
	JoinDoc(docID string, fromVersion int) error
}

// View is the local editor surface the core keeps in sync.
type View interface {
	// Apply applies a delta to the current view content.
	Apply(d delta.Delta) error
	// SetContent replaces the view with authoritative content.
	SetContent(content delta.Delta)
}

// RemoteOp is one replayed operation inside a catch-up.
type RemoteOp struct {
	Delta   delta.Delta
	Version int
}

// Core holds the client session state for one document.
type Core struct {
	docID  string
	sender Sender
	view   View

	knownVersion int
	inFlight     *delta.Delta
	pending      *delta.Delta
}

// NewCore returns a core at version 0 with empty buffers.
func NewCore(docID string, sender Sender, view View) *Core {
	return &Core{docID: docID, sender: sender, view: view}
}

// KnownVersion is the last server-confirmed version. It never decreases
// within a session.
func (c *Core) KnownVersion() int { return c.knownVersion }

// InFlight returns the unacknowledged outstanding delta, or nil.
func (c *Core) InFlight() *delta.Delta { return c.inFlight }

// Pending returns the buffered composition of local edits made while an op
// was outstanding, or nil.
func (c *Core) Pending() *delta.Delta { return c.pending }

// LocalEdit records a user edit. If the channel is idle the edit is sent
// immediately; otherwise it is composed into the pending buffer. An edit is
// never sent while another op is in flight.
func (c *Core) LocalEdit(d delta.Delta) error {
	if c.inFlight == nil {
		c.inFlight = &d
		return c.sender.SendOp(c.docID, d, c.knownVersion)
	}
	if c.pending == nil {
		c.pending = &d
	} else {
		merged := delta.Compose(*c.pending, d)
		c.pending = &merged
	}
	return nil
}

// HandleAck confirms the in-flight op at the given version and promotes the
// pending buffer, if any, to a new in-flight op. A repeated ack for an
// already-confirmed version is a no-op.
func (c *Core) HandleAck(version int) error {
	if version <= c.knownVersion {
		// Duplicate or stale ack; at-least-once delivery makes these normal.
		return nil
	}
	c.knownVersion = version
	c.inFlight = nil
	if c.pending != nil {
		c.inFlight = c.pending
		c.pending = nil
		return c.sender.SendOp(c.docID, *c.inFlight, c.knownVersion)
	}
	return nil
}

// HandleRemoteOp applies a committed peer operation. With optimistic local
// state outstanding, the remote delta is transformed past it before being
// applied, and both buffers are rebased over the remote delta. The remote
// op is already committed, so it keeps the spot at tied insert positions;
// that mirrors the server's transform of our outstanding op and keeps both
// sides convergent.
func (c *Core) HandleRemoteOp(d delta.Delta, version int, userID string) error {
	remote := d
	if c.inFlight != nil {
		rebased := delta.Transform(remote, *c.inFlight, true)
		remote = delta.Transform(*c.inFlight, remote, false)
		c.inFlight = &rebased
	}
	if c.pending != nil {
		rebased := delta.Transform(remote, *c.pending, true)
		remote = delta.Transform(*c.pending, remote, false)
		c.pending = &rebased
	}
	if err := c.view.Apply(remote); err != nil {
		return err
	}
	c.knownVersion = version
	return nil
}

// HandleSnapshot replaces the local view with authoritative content and
// discards any optimistic state.
func (c *Core) HandleSnapshot(content delta.Delta, version int) {
	c.view.SetContent(content)
	c.knownVersion = version
	c.inFlight = nil
	c.pending = nil
}

// HandleCatchup replays missed operations in ascending version order. Each
// replayed op is treated as a remote op, so outstanding optimistic state is
// transformed along the way.
func (c *Core) HandleCatchup(ops []RemoteOp, currentVersion int) error {
	for _, op := range ops {
		if err := c.HandleRemoteOp(op.Delta, op.Version, ""); err != nil {
			return err
		}
	}
	if currentVersion > c.knownVersion {
		c.knownVersion = currentVersion
	}
	return nil
}

// HandleOpError discards optimistic state and rejoins for reconciliation;
// the server's replay restores the authoritative content.
func (c *Core) HandleOpError() error {
	c.inFlight = nil
	c.pending = nil
	return c.sender.JoinDoc(c.docID, c.knownVersion)
}
