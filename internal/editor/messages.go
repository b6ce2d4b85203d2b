package editor

import (
	"collab-docs/pkg/delta"
)

// Wire event names. Every frame is a JSON object tagged by "type".
const (
	// Client → server.
	MsgJoinDoc      = "join-doc"
	MsgSendOp       = "send-op"
	MsgCursorUpdate = "cursor-update"
	MsgLeaveDoc     = "leave-doc"

	// Server → client.
	MsgDocSnapshot  = "doc-snapshot"
	MsgCatchupOps   = "catchup-ops"
	MsgReceiveOp    = "receive-op"
	MsgOpAck        = "op-ack"
	MsgOpError      = "op-error"
	MsgRemoteCursor = "remote-cursor"
	MsgUserJoined   = "user-joined"
	MsgUserLeft     = "user-left"
	MsgError        = "error"
)

// Range is a cursor position or selection: index and length in document
// units. A nil range means the cursor left the document.
type Range struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// ClientMessage is an inbound frame. Pointer fields distinguish absent from
// zero: a send-op without baseVersion is a protocol error, not version 0.
type ClientMessage struct {
	Type        string      `json:"type"`
	DocID       string      `json:"docId,omitempty"`
	Delta       delta.Delta `json:"delta,omitempty"`
	BaseVersion *int        `json:"baseVersion,omitempty"`
	FromVersion *int        `json:"fromVersion,omitempty"`
	Range       *Range      `json:"range,omitempty"`
}

// CatchupOp is one replayed log entry inside a catchup-ops frame.
type CatchupOp struct {
	Delta   delta.Delta `json:"delta"`
	Version int         `json:"version"`
}

// ServerMessage is an outbound frame. Only the fields relevant to Type are
// populated.
type ServerMessage struct {
	Type           string      `json:"type"`
	DocID          string      `json:"docId,omitempty"`
	Content        delta.Delta `json:"content,omitempty"`
	Delta          delta.Delta `json:"delta,omitempty"`
	Ops            []CatchupOp `json:"ops,omitempty"`
	Version        int         `json:"version,omitempty"`
	CurrentVersion int         `json:"currentVersion,omitempty"`
	BaseVersion    int         `json:"baseVersion,omitempty"`
	UserID         string      `json:"userId,omitempty"`
	Range          *Range      `json:"range,omitempty"`
	Message        string      `json:"message,omitempty"`
}
