package editor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-docs/internal/auth"
	"collab-docs/internal/lock"
	"collab-docs/internal/store"
)

func newHubTestService() *Service {
	return NewService(DefaultConfig(), store.NewMemory(), lock.NewMemory(), auth.Static{}, nil)
}

// takeFrame pops one queued frame from a client's send buffer, if any.
func takeFrame(t *testing.T, c *Client) (ServerMessage, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg, true
	default:
		return ServerMessage{}, false
	}
}

func TestHubSubscribeIsIdempotent(t *testing.T) {
	svc := newHubTestService()
	h := NewHub()
	c := newClient(svc, nil, "c1", "alice")

	h.Subscribe("d1", c)
	h.Subscribe("d1", c)
	assert.Equal(t, 1, h.Subscribers("d1"))

	h.Unsubscribe("d1", c)
	h.Unsubscribe("d1", c)
	assert.Equal(t, 0, h.Subscribers("d1"))
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	svc := newHubTestService()
	h := NewHub()
	sender := newClient(svc, nil, "c1", "alice")
	peer := newClient(svc, nil, "c2", "bob")
	outsider := newClient(svc, nil, "c3", "carol")

	h.Subscribe("d1", sender)
	h.Subscribe("d1", peer)
	h.Subscribe("d2", outsider)

	h.Broadcast("d1", ServerMessage{Type: MsgReceiveOp, DocID: "d1", Version: 1, UserID: "alice"}, sender)

	msg, ok := takeFrame(t, peer)
	require.True(t, ok)
	assert.Equal(t, MsgReceiveOp, msg.Type)
	assert.Equal(t, "alice", msg.UserID)

	_, ok = takeFrame(t, sender)
	assert.False(t, ok, "sender must not receive its own broadcast")
	_, ok = takeFrame(t, outsider)
	assert.False(t, ok, "other rooms must not receive the broadcast")
}

func TestHubUnsubscribeAll(t *testing.T) {
	svc := newHubTestService()
	h := NewHub()
	c := newClient(svc, nil, "c1", "alice")
	peer := newClient(svc, nil, "c2", "bob")

	h.Subscribe("d1", c)
	h.Subscribe("d2", c)
	h.Subscribe("d1", peer)

	docIDs := h.UnsubscribeAll(c)
	assert.ElementsMatch(t, []string{"d1", "d2"}, docIDs)
	assert.Equal(t, 1, h.Subscribers("d1"))
	assert.Equal(t, 0, h.Subscribers("d2"))

	assert.Empty(t, h.UnsubscribeAll(c))
}

func TestClientEnqueueAfterCloseIsDropped(t *testing.T) {
	svc := newHubTestService()
	c := newClient(svc, nil, "c1", "alice")
	c.closeSend()
	c.closeSend() // idempotent

	// Accepted-and-dropped: a closed client must not count as slow.
	assert.True(t, c.enqueue([]byte(`{}`)))
}
