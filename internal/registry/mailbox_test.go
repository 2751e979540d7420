package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomrelay/internal/wire"
)

func TestMailboxPopAllDrainsInOrder(t *testing.T) {
	m := NewMailbox()
	m.Push(wire.BaseStatus{Code: 1, Message: "a"})
	m.Push(wire.BaseStatus{Code: 2, Message: "b"})

	items, ok := m.PopAll()
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].StatusCode())
	assert.Equal(t, 2, items[1].StatusCode())

	// A second pop with nothing queued blocks; push from another goroutine
	// to prove it isn't permanently starved by the prior drain.
	done := make(chan struct{})
	go func() {
		items, ok := m.PopAll()
		require.True(t, ok)
		require.Len(t, items, 1)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	m.Push(wire.BaseStatus{Code: 3, Message: "c"})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second PopAll did not unblock")
	}
}

func TestMailboxReleaseOnDisconnectSentinel(t *testing.T) {
	m := NewMailbox()
	m.ReleaseOnDisconnect()

	items, ok := m.PopAll()
	assert.False(t, ok)
	assert.Nil(t, items)
}

func TestMailboxPendingPushSurvivesDisconnectRace(t *testing.T) {
	m := NewMailbox()
	m.Push(wire.BaseStatus{Code: 1, Message: "a"})
	m.ReleaseOnDisconnect()

	items, ok := m.PopAll()
	require.True(t, ok)
	assert.Len(t, items, 1)

	_, ok = m.PopAll()
	assert.False(t, ok)
}

func TestMailboxReleaseIsIdempotent(t *testing.T) {
	m := NewMailbox()
	m.ReleaseOnDisconnect()
	m.ReleaseOnDisconnect()
	_, ok := m.PopAll()
	assert.False(t, ok)
}
