package bollywood

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxFIFOAndCap(t *testing.T) {
	m := NewMailbox(2)
	require.True(t, m.enqueue(&Message{ID: 1}))
	require.True(t, m.enqueue(&Message{ID: 2}))
	require.False(t, m.enqueue(&Message{ID: 3, Kind: Async}))
	require.True(t, m.enqueue(&Message{ID: 4, Kind: System}))

	msg, ok := m.dequeue()
	require.True(t, ok)
	require.Equal(t, uint64(1), msg.ID)

	msg, ok = m.dequeue()
	require.True(t, ok)
	require.Equal(t, uint64(2), msg.ID)

	msg, ok = m.dequeue()
	require.True(t, ok)
	require.Equal(t, uint64(4), msg.ID)

	_, ok = m.dequeue()
	require.False(t, ok)
}

func TestMailboxTakeReplyPreservesOrder(t *testing.T) {
	m := NewMailbox(8)
	require.True(t, m.enqueue(&Message{ID: 1, Kind: Async}))
	require.True(t, m.enqueue(&Message{ID: 2, Kind: SyncReply}))
	require.True(t, m.enqueue(&Message{ID: 3, Kind: Async}))

	reply, ok := m.takeReply(2)
	require.True(t, ok)
	require.Equal(t, uint64(2), reply.ID)

	first, _ := m.dequeue()
	second, _ := m.dequeue()
	require.Equal(t, uint64(1), first.ID)
	require.Equal(t, uint64(3), second.ID)
}

func TestMailboxDrain(t *testing.T) {
	m := NewMailbox(4)
	m.enqueue(&Message{ID: 1})
	m.enqueue(&Message{ID: 2})
	drained := m.drain()
	require.Len(t, drained, 2)
	require.Equal(t, 0, m.Len())
}
