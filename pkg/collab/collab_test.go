package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-docs/pkg/delta"
)

type sentOp struct {
	docID       string
	delta       delta.Delta
	baseVersion int
}

type joinReq struct {
	docID       string
	fromVersion int
}

type fakeSender struct {
	ops   []sentOp
	joins []joinReq
}

func (s *fakeSender) SendOp(docID string, d delta.Delta, baseVersion int) error {
	s.ops = append(s.ops, sentOp{docID: docID, delta: d, baseVersion: baseVersion})
	return nil
}

func (s *fakeSender) JoinDoc(docID string, fromVersion int) error {
	s.joins = append(s.joins, joinReq{docID: docID, fromVersion: fromVersion})
	return nil
}

// fakeView composes applied deltas into content, like an editor buffer.
type fakeView struct {
	content delta.Delta
}

func (v *fakeView) Apply(d delta.Delta) error {
	v.content = delta.Compose(v.content, d)
	return nil
}

func (v *fakeView) SetContent(content delta.Delta) {
	v.content = content
}

func newTestCore() (*Core, *fakeSender, *fakeView) {
	sender := &fakeSender{}
	view := &fakeView{}
	return NewCore("d1", sender, view), sender, view
}

func TestLocalEditSendsWhenIdle(t *testing.T) {
	core, sender, _ := newTestCore()
	core.HandleSnapshot(delta.New(), 3)

	d := delta.New().Insert("X", nil)
	require.NoError(t, core.LocalEdit(d))

	require.Len(t, sender.ops, 1)
	assert.Equal(t, "d1", sender.ops[0].docID)
	assert.Equal(t, 3, sender.ops[0].baseVersion)
	assert.True(t, delta.Equals(d, sender.ops[0].delta))
	require.NotNil(t, core.InFlight())
	assert.Nil(t, core.Pending())
}

func TestLocalEditsBufferWhileInFlight(t *testing.T) {
	core, sender, _ := newTestCore()
	core.HandleSnapshot(delta.New(), 3)

	require.NoError(t, core.LocalEdit(delta.New().Insert("a", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Retain(1, nil).Insert("b", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Retain(2, nil).Insert("c", nil)))

	// Only the first edit went out; the rest composed into one buffer.
	require.Len(t, sender.ops, 1)
	require.NotNil(t, core.Pending())
	assert.True(t, delta.Equals(delta.New().Retain(1, nil).Insert("bc", nil), *core.Pending()))
}

func TestAckPromotesPendingBuffer(t *testing.T) {
	core, sender, _ := newTestCore()
	core.HandleSnapshot(delta.New(), 3)

	require.NoError(t, core.LocalEdit(delta.New().Insert("a", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Retain(1, nil).Insert("b", nil)))

	require.NoError(t, core.HandleAck(4))
	assert.Equal(t, 4, core.KnownVersion())

	// The buffered composite went out against the acked version.
	require.Len(t, sender.ops, 2)
	assert.Equal(t, 4, sender.ops[1].baseVersion)
	assert.True(t, delta.Equals(delta.New().Retain(1, nil).Insert("b", nil), sender.ops[1].delta))
	require.NotNil(t, core.InFlight())
	assert.Nil(t, core.Pending())

	// The second ack drains the channel completely.
	require.NoError(t, core.HandleAck(5))
	assert.Equal(t, 5, core.KnownVersion())
	assert.Nil(t, core.InFlight())
	assert.Len(t, sender.ops, 2)
}

func TestDuplicateAckIsNoOp(t *testing.T) {
	core, sender, _ := newTestCore()
	core.HandleSnapshot(delta.New(), 3)

	require.NoError(t, core.LocalEdit(delta.New().Insert("a", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Retain(1, nil).Insert("b", nil)))
	require.NoError(t, core.HandleAck(4))
	require.Len(t, sender.ops, 2)

	// A redelivered ack must not touch the new in-flight op.
	require.NoError(t, core.HandleAck(4))
	assert.Equal(t, 4, core.KnownVersion())
	require.NotNil(t, core.InFlight())
	assert.Len(t, sender.ops, 2)
}

func TestRemoteOpRebasesOptimisticState(t *testing.T) {
	core, _, view := newTestCore()
	core.HandleSnapshot(delta.New(), 3)

	// The user typed X; the editor already shows it.
	require.NoError(t, core.LocalEdit(delta.New().Insert("X", nil)))
	view.content = delta.New().Insert("X", nil)

	// A peer's concurrent insert commits first and wins the position.
	require.NoError(t, core.HandleRemoteOp(delta.New().Insert("Y", nil), 4, "bob"))

	assert.True(t, delta.Equals(delta.New().Insert("YX", nil), view.content))
	assert.Equal(t, 4, core.KnownVersion())
	require.NotNil(t, core.InFlight())
	assert.True(t, delta.Equals(delta.New().Retain(1, nil).Insert("X", nil), *core.InFlight()))
}

func TestRemoteOpRebasesPendingToo(t *testing.T) {
	core, _, view := newTestCore()
	core.HandleSnapshot(delta.New(), 3)

	require.NoError(t, core.LocalEdit(delta.New().Insert("X", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Retain(1, nil).Insert("Z", nil)))
	view.content = delta.New().Insert("XZ", nil)

	require.NoError(t, core.HandleRemoteOp(delta.New().Insert("Y", nil), 4, "bob"))

	assert.True(t, delta.Equals(delta.New().Insert("YXZ", nil), view.content))
	require.NotNil(t, core.Pending())
	assert.True(t, delta.Equals(delta.New().Retain(2, nil).Insert("Z", nil), *core.Pending()))
}

func TestRemoteOpWithoutOptimisticState(t *testing.T) {
	core, _, view := newTestCore()
	core.HandleSnapshot(delta.New().Insert("Hello", nil), 3)

	require.NoError(t, core.HandleRemoteOp(delta.New().Retain(5, nil).Insert("!", nil), 4, "bob"))
	assert.True(t, delta.Equals(delta.New().Insert("Hello!", nil), view.content))
	assert.Equal(t, 4, core.KnownVersion())
}

func TestCatchupReplaysAscending(t *testing.T) {
	core, _, view := newTestCore()

	ops := []RemoteOp{
		{Delta: delta.New().Insert("A", nil), Version: 1},
		{Delta: delta.New().Retain(1, nil).Insert("B", nil), Version: 2},
	}
	require.NoError(t, core.HandleCatchup(ops, 2))

	assert.True(t, delta.Equals(delta.New().Insert("AB", nil), view.content))
	assert.Equal(t, 2, core.KnownVersion())
}

func TestCatchupTransformsOptimisticState(t *testing.T) {
	core, _, view := newTestCore()
	core.HandleSnapshot(delta.New(), 2)

	require.NoError(t, core.LocalEdit(delta.New().Insert("X", nil)))
	view.content = delta.New().Insert("X", nil)

	require.NoError(t, core.HandleCatchup([]RemoteOp{
		{Delta: delta.New().Insert("A", nil), Version: 3},
	}, 3))

	assert.True(t, delta.Equals(delta.New().Insert("AX", nil), view.content))
	require.NotNil(t, core.InFlight())
	assert.True(t, delta.Equals(delta.New().Retain(1, nil).Insert("X", nil), *core.InFlight()))
	assert.Equal(t, 3, core.KnownVersion())
}

func TestSnapshotDiscardsOptimisticState(t *testing.T) {
	core, _, view := newTestCore()
	core.HandleSnapshot(delta.New(), 1)
	require.NoError(t, core.LocalEdit(delta.New().Insert("X", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Insert("Y", nil)))

	content := delta.New().Insert("server truth", nil)
	core.HandleSnapshot(content, 9)

	assert.True(t, delta.Equals(content, view.content))
	assert.Equal(t, 9, core.KnownVersion())
	assert.Nil(t, core.InFlight())
	assert.Nil(t, core.Pending())
}

func TestOpErrorResynchronizes(t *testing.T) {
	core, sender, _ := newTestCore()
	core.HandleSnapshot(delta.New(), 5)
	require.NoError(t, core.LocalEdit(delta.New().Insert("X", nil)))
	require.NoError(t, core.LocalEdit(delta.New().Insert("Y", nil)))

	require.NoError(t, core.HandleOpError())

	assert.Nil(t, core.InFlight())
	assert.Nil(t, core.Pending())
	require.Len(t, sender.joins, 1)
	assert.Equal(t, joinReq{docID: "d1", fromVersion: 5}, sender.joins[0])
}
