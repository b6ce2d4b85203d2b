package editor

import (
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"collab-docs/internal/docs"
	"collab-docs/internal/lock"
	"collab-docs/internal/store"
	"collab-docs/pkg/delta"
)

// Session handlers: one method per inbound event, run sequentially on the
// connection's read pump. Errors go back to the originating connection as
// op-error or error frames and are never broadcast.

// handleJoin authorizes the user for the document, subscribes the
// connection, and replies with either a catch-up replay (fromVersion given
// and behind) or a full snapshot.
func (c *Client) handleJoin(msg ClientMessage) {
	if msg.DocID == "" {
		c.sendError("join-doc requires docId")
		return
	}

	doc, err := c.service.store.Load(c.ctx, msg.DocID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.sendError("document not found")
		} else {
			log.WithError(err).WithField("doc", msg.DocID).Error("loading document for join")
			c.sendError("internal error")
		}
		return
	}
	if !doc.CanEdit(c.userID) {
		c.sendError("not authorized for this document")
		return
	}

	c.service.hub.Subscribe(msg.DocID, c)

	if msg.FromVersion != nil && *msg.FromVersion < doc.Version {
		entries, err := c.service.store.OpsSince(c.ctx, msg.DocID, *msg.FromVersion)
		if err != nil {
			log.WithError(err).WithField("doc", msg.DocID).Error("loading catch-up ops")
			c.sendError("internal error")
			return
		}
		ops := make([]CatchupOp, len(entries))
		for i, e := range entries {
			ops[i] = CatchupOp{Delta: e.Delta, Version: e.Version}
		}
		c.sendMessage(ServerMessage{
			Type:           MsgCatchupOps,
			DocID:          msg.DocID,
			Ops:            ops,
			CurrentVersion: doc.Version,
		})
	} else {
		c.sendMessage(ServerMessage{
			Type:    MsgDocSnapshot,
			DocID:   msg.DocID,
			Content: doc.Content,
			Version: doc.Version,
		})
	}

	// Replay existing cursors to the joiner, then announce the join.
	for _, cs := range c.service.presence.Snapshot(msg.DocID, c.id) {
		c.sendMessage(ServerMessage{
			Type:   MsgRemoteCursor,
			DocID:  msg.DocID,
			UserID: cs.UserID,
			Range:  cs.Range,
		})
	}
	c.service.hub.Broadcast(msg.DocID, ServerMessage{
		Type:   MsgUserJoined,
		DocID:  msg.DocID,
		UserID: c.userID,
	}, c)

	log.WithFields(log.Fields{
		"conn":    c.id,
		"user":    c.userID,
		"doc":     msg.DocID,
		"version": doc.Version,
	}).Info("joined document")
}

// handleSendOp serializes the write through the per-document lock, applies
// the operation, acks the sender, and broadcasts the transformed delta to
// the rest of the room. The ack is enqueued before the fan-out while the
// lock is still held, so the sender never sees a later peer op first.
func (c *Client) handleSendOp(msg ClientMessage) {
	if msg.DocID == "" || msg.BaseVersion == nil {
		c.sendOpError("send-op requires docId and baseVersion", 0)
		return
	}
	baseVersion := *msg.BaseVersion
	if err := msg.Delta.Validate(); err != nil {
		c.sendOpError("malformed delta", baseVersion)
		return
	}

	owner := uuid.NewString()
	key := lock.Key(msg.DocID)
	held, err := lock.Acquire(c.ctx, c.service.locker, key, owner, c.service.cfg.LockTTL, c.service.cfg.LockAcquireTimeout)
	if err != nil {
		log.WithError(err).WithField("doc", msg.DocID).Warn("lock acquisition failed, proceeding optimistically")
	} else if !held {
		// Correctness is preserved by the version gate, at the cost of a
		// higher conflict rate.
		c.service.metrics.LockTimeouts.Inc()
		log.WithField("doc", msg.DocID).Debug("lock timeout, proceeding optimistically")
	}
	if held {
		defer func() {
			if _, err := c.service.locker.Release(c.ctx, key, owner); err != nil {
				log.WithError(err).WithField("doc", msg.DocID).Warn("releasing document lock")
			}
		}()
	}

	res, err := c.service.docs.ApplyOperation(c.ctx, msg.DocID, msg.Delta, baseVersion, c.userID, c.id)
	if err != nil {
		c.sendOpError(opErrorMessage(err), baseVersion)
		return
	}

	c.service.metrics.OpsCommitted.Inc()
	c.sendMessage(ServerMessage{
		Type:    MsgOpAck,
		DocID:   msg.DocID,
		Version: res.Version,
	})
	c.service.hub.Broadcast(msg.DocID, ServerMessage{
		Type:    MsgReceiveOp,
		DocID:   msg.DocID,
		Delta:   res.Delta,
		Version: res.Version,
		UserID:  c.userID,
	}, c)

	log.WithFields(log.Fields{
		"conn":    c.id,
		"doc":     msg.DocID,
		"base":    baseVersion,
		"version": res.Version,
	}).Debug("operation committed")
}

// handleCursorUpdate forwards a cursor hint to the rest of the room. No
// persistence, no transformation.
func (c *Client) handleCursorUpdate(msg ClientMessage) {
	if msg.DocID == "" {
		return
	}
	c.service.presence.Update(msg.DocID, c.id, c.userID, msg.Range)
	c.service.hub.Broadcast(msg.DocID, ServerMessage{
		Type:   MsgRemoteCursor,
		DocID:  msg.DocID,
		UserID: c.userID,
		Range:  msg.Range,
	}, c)
}

// handleLeave unsubscribes the connection and announces the departure.
func (c *Client) handleLeave(msg ClientMessage) {
	if msg.DocID == "" {
		return
	}
	c.service.hub.Unsubscribe(msg.DocID, c)
	c.service.presence.Remove(msg.DocID, c.id)
	c.service.hub.Broadcast(msg.DocID, ServerMessage{
		Type:   MsgUserLeft,
		DocID:  msg.DocID,
		UserID: c.userID,
	}, c)
}

// sendOpError reports a failed send-op to the originating connection only.
func (c *Client) sendOpError(message string, baseVersion int) {
	c.sendMessage(ServerMessage{
		Type:        MsgOpError,
		Message:     message,
		BaseVersion: baseVersion,
	})
}

// opErrorMessage maps write-path failures to client-facing strings.
func opErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "document not found"
	case errors.Is(err, docs.ErrVersionAhead):
		return "client version is ahead of the server"
	case errors.Is(err, docs.ErrTooMuchContention):
		return "too much contention, please resynchronize"
	case errors.Is(err, delta.ErrMalformed):
		return "malformed delta"
	default:
		log.WithError(err).Error("applying operation")
		return "internal error"
	}
}
