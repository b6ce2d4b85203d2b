package editor

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Hub is the room router: it maps each document to the set of connections
// subscribed to it and fans out frames. Subscribe and Unsubscribe are
// idempotent. Delivery to a single connection preserves send order; across
// connections there is no ordering guarantee.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

// NewHub returns an empty router.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

// Subscribe adds c to the room for docID.
func (h *Hub) Subscribe(docID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[docID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[docID] = room
	}
	room[c] = true
}

// Unsubscribe removes c from the room for docID.
func (h *Hub) Unsubscribe(docID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(docID, c)
}

// UnsubscribeAll removes c from every room and returns the ids of the rooms
// it was in, so the caller can announce the departure per document.
func (h *Hub) UnsubscribeAll(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var docIDs []string
	for docID, room := range h.rooms {
		if room[c] {
			docIDs = append(docIDs, docID)
			h.removeLocked(docID, c)
		}
	}
	return docIDs
}

func (h *Hub) removeLocked(docID string, c *Client) {
	room := h.rooms[docID]
	if room == nil {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, docID)
	}
}

// Subscribers returns the number of connections in the room for docID.
func (h *Hub) Subscribers(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// Broadcast delivers msg to every subscriber of docID except exclude.
// A subscriber whose send buffer is full is dropped rather than allowed to
// stall the fan-out.
func (h *Hub) Broadcast(docID string, msg ServerMessage, exclude *Client) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("type", msg.Type).Error("marshaling broadcast")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			log.WithFields(log.Fields{
				"conn": c.id,
				"doc":  docID,
			}).Warn("subscriber send buffer full, dropping connection")
			c.closeSlow()
		}
	}
}
