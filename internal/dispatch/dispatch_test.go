package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomrelay/internal/registry"
	"roomrelay/internal/wire"
)

func name20(s string) string {
	return s + strings.Repeat(" ", wire.NameWidth-len(s))
}

func register(t *testing.T, reg *registry.Registry, username, addr string) {
	t.Helper()
	_, status := reg.Register(name20(username), addr)
	require.Equal(t, 200, status.Code)
}

func drain(t *testing.T, reg *registry.Registry, addr string) []wire.Status {
	t.Helper()
	// Non-blocking drain for tests: push a sentinel disconnect isn't
	// appropriate here, so tests instead only call drain after enough
	// synchronous EnqueueMessage calls have already happened, and rely on
	// FlushMessageQueue's fast path (mailbox already non-empty).
	items, err := reg.FlushMessageQueue(addr)
	require.NoError(t, err)
	return items
}

func TestDispatchJoinCreatesRoomAndNotifiesCreator(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")

	cmd := wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("alice")}
	selfDisconnected := Dispatch(reg, nil, "addr-1", cmd)
	assert.False(t, selfDisconnected)

	items := drain(t, reg, "addr-1")
	require.Len(t, items, 1)
	js, ok := items[0].(wire.JoinStatus)
	require.True(t, ok)
	assert.Equal(t, 200, js.Code)
	assert.True(t, js.IsCreation)
}

func TestDispatchRoomMessageFansOutToAllMembers(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")
	register(t, reg, "bob", "addr-2")
	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("alice")})
	Dispatch(reg, nil, "addr-2", wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("bob")})
	drain(t, reg, "addr-1")
	drain(t, reg, "addr-2")

	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindRoomMessage, Rooms: []string{name20("lobby")}, Payload: "hello"})

	aliceItems := drain(t, reg, "addr-1")
	bobItems := drain(t, reg, "addr-2")
	require.Len(t, aliceItems, 1)
	require.Len(t, bobItems, 1)
	assert.Equal(t, 200, aliceItems[0].StatusCode())
	assert.Equal(t, 200, bobItems[0].StatusCode())
}

func TestDispatchRoomMessageUnknownRoomIsAllOrNothing(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")
	register(t, reg, "bob", "addr-2")
	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindJoin, Room: name20("real"), Username: name20("alice")})
	Dispatch(reg, nil, "addr-2", wire.Command{Kind: wire.KindJoin, Room: name20("real"), Username: name20("bob")})
	drain(t, reg, "addr-1")
	drain(t, reg, "addr-2")

	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindRoomMessage, Rooms: []string{name20("real"), name20("ghost")}, Payload: "hi"})

	aliceItems := drain(t, reg, "addr-1")
	require.Len(t, aliceItems, 1)
	assert.Equal(t, 497, aliceItems[0].StatusCode())
	assert.True(t, reg.HasAddr("addr-2"))
}

func TestDispatchPrivateMessageUnknownRecipientNotifiesOnlySender(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")
	register(t, reg, "bob", "addr-2")

	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindPrivateMessage, Users: []string{name20("bob"), name20("nobody")}, Payload: "secret"})

	aliceItems := drain(t, reg, "addr-1")
	require.Len(t, aliceItems, 1)
	ms, ok := aliceItems[0].(wire.MessageStatus)
	require.True(t, ok)
	assert.Equal(t, 496, ms.Code)
	assert.Equal(t, name20("nobody"), ms.User)
}

func TestDispatchPrivateMessageDeliversAndEchoesToSender(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")
	register(t, reg, "bob", "addr-2")

	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindPrivateMessage, Users: []string{name20("bob")}, Payload: "hi"})

	bobItems := drain(t, reg, "addr-2")
	require.Len(t, bobItems, 1)
	assert.Equal(t, 200, bobItems[0].StatusCode())

	aliceItems := drain(t, reg, "addr-1")
	require.Len(t, aliceItems, 1)
	assert.Equal(t, 200, aliceItems[0].StatusCode())
}

func TestDispatchLeaveNotifiesRemainingMembersAndLeaver(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")
	register(t, reg, "bob", "addr-2")
	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("alice")})
	Dispatch(reg, nil, "addr-2", wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("bob")})
	drain(t, reg, "addr-1")
	drain(t, reg, "addr-2")

	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindLeave, Room: name20("lobby"), Username: name20("alice")})

	aliceItems := drain(t, reg, "addr-1")
	bobItems := drain(t, reg, "addr-2")
	require.Len(t, aliceItems, 1)
	require.Len(t, bobItems, 1)
	assert.Equal(t, 200, aliceItems[0].StatusCode())
}

func TestDispatchDisconnectReportsSelfDisconnected(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")

	selfDisconnected := Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindDisconnect, Username: name20("alice")})
	assert.True(t, selfDisconnected)
	assert.False(t, reg.HasUser(name20("alice")))
}

func TestDispatchDisconnectNotifiesRemainingRoomMembers(t *testing.T) {
	reg := registry.New(nil)
	register(t, reg, "alice", "addr-1")
	register(t, reg, "bob", "addr-2")
	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("alice")})
	Dispatch(reg, nil, "addr-2", wire.Command{Kind: wire.KindJoin, Room: name20("lobby"), Username: name20("bob")})
	drain(t, reg, "addr-1")
	drain(t, reg, "addr-2")

	Dispatch(reg, nil, "addr-1", wire.Command{Kind: wire.KindDisconnect, Username: name20("alice")})

	bobItems := drain(t, reg, "addr-2")
	require.Len(t, bobItems, 1)
	ds, ok := bobItems[0].(wire.DisconnectStatus)
	require.True(t, ok)
	assert.Equal(t, name20("alice"), ds.Username)
	assert.Equal(t, name20("lobby"), ds.Room)
}
