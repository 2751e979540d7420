// Package dispatch turns a decoded, post-registration wire.Command into
// registry mutations and the resulting status fan-out. Registration
// itself is handled by the connection driver directly, since a
// connection has no session (and therefore no mailbox to route a failure
// to) until registration succeeds — see internal/chatserver.
package dispatch

import (
	"roomrelay/internal/registry"
	"roomrelay/internal/wire"
)

// Metrics is the subset of instrumentation the dispatcher updates per
// command processed.
type Metrics interface {
	CommandsTotal(command string, statusCode int)
}

// Dispatch executes cmd on behalf of the session registered at addr and
// enqueues every resulting status to its recipients' mailboxes. It
// reports selfDisconnected = true only when cmd was a Disconnect that
// actually removed the caller's own session — the signal the connection
// driver uses to stop reading and unwind.
//
// cmd.Kind must not be wire.KindRegister; the driver never routes
// registration frames here.
func Dispatch(reg *registry.Registry, m Metrics, addr string, cmd wire.Command) (selfDisconnected bool) {
	username, err := reg.GetUserByAddr(addr)
	if err != nil {
		// Address isn't registered (a race with a concurrent disconnect, or
		// a protocol violation). There is no session to route a failure
		// status to, so there's nothing to do.
		return false
	}

	switch cmd.Kind {
	case wire.KindJoin:
		status := reg.JoinRoom(cmd.Room, cmd.Username)
		record(m, cmd.Kind, status.StatusCode())
		if status.StatusCode() == 200 {
			members, _ := reg.ListRoomUsers(cmd.Room)
			reg.EnqueueMessage(status, members)
		} else {
			reg.EnqueueMessage(status, []string{username})
		}

	case wire.KindLeave:
		status := reg.LeaveRoom(cmd.Room, cmd.Username)
		record(m, cmd.Kind, status.StatusCode())
		if status.StatusCode() == 200 {
			members, _ := reg.ListRoomUsers(cmd.Room)
			reg.EnqueueMessage(status, dedupe(append(members, cmd.Username)))
		} else {
			reg.EnqueueMessage(status, []string{username})
		}

	case wire.KindRoomMessage:
		dispatchRoomMessage(reg, m, username, cmd)

	case wire.KindPrivateMessage:
		dispatchPrivateMessage(reg, m, username, cmd)

	case wire.KindListRoomUsers:
		members, ok := reg.ListRoomUsers(cmd.Room)
		var status wire.RoomUserListStatus
		if ok {
			status = wire.RoomUserListStatus{Code: 200, Message: "success", Room: cmd.Room, Users: members}
		} else {
			status = wire.RoomUserListStatus{Code: 451, Message: "room not found", Room: cmd.Room}
		}
		record(m, cmd.Kind, status.StatusCode())
		reg.EnqueueMessage(status, []string{username})

	case wire.KindListRooms:
		status := wire.ListRoomStatus{Code: 200, Message: "success", Rooms: reg.ListRooms()}
		record(m, cmd.Kind, status.StatusCode())
		reg.EnqueueMessage(status, []string{username})

	case wire.KindDisconnect:
		rooms, status := reg.DisconnectUser(cmd.Username)
		for _, room := range rooms {
			remaining, _ := reg.ListRoomUsers(room)
			reg.EnqueueMessage(wire.DisconnectStatus{Code: 200, Message: "disconnected", Username: cmd.Username, Room: room}, remaining)
		}
		record(m, cmd.Kind, status.StatusCode())
		if status.StatusCode() != 200 {
			reg.EnqueueMessage(status, []string{username})
			return false
		}
		return cmd.Username == username
	}

	return false
}

func dispatchRoomMessage(reg *registry.Registry, m Metrics, sender string, cmd wire.Command) {
	for _, room := range cmd.Rooms {
		if !reg.HasRoom(room) {
			status := wire.MessageStatus{Code: 497, Message: "room not found", ToRoom: true, Sender: sender, Room: room, Payload: cmd.Payload}
			record(m, cmd.Kind, status.StatusCode())
			reg.EnqueueMessage(status, []string{sender})
			return
		}
	}
	for _, room := range cmd.Rooms {
		members, _ := reg.ListRoomUsers(room)
		status := wire.MessageStatus{Code: 200, Message: "success", ToRoom: true, Sender: sender, Room: room, Payload: cmd.Payload}
		reg.EnqueueMessage(status, members)
	}
	record(m, cmd.Kind, 200)
}

func dispatchPrivateMessage(reg *registry.Registry, m Metrics, sender string, cmd wire.Command) {
	for _, user := range cmd.Users {
		if !reg.HasUser(user) {
			status := wire.MessageStatus{Code: 496, Message: "recipient not found", ToRoom: false, Sender: sender, User: user, Payload: cmd.Payload}
			record(m, cmd.Kind, status.StatusCode())
			reg.EnqueueMessage(status, []string{sender})
			return
		}
	}

	senderIncluded := false
	for _, user := range cmd.Users {
		if user == sender {
			senderIncluded = true
			break
		}
	}

	for _, user := range cmd.Users {
		status := wire.MessageStatus{Code: 200, Message: "success", ToRoom: false, Sender: sender, User: user, Payload: cmd.Payload}
		reg.EnqueueMessage(status, []string{user})
		if !senderIncluded {
			reg.EnqueueMessage(status, []string{sender})
		}
	}
	record(m, cmd.Kind, 200)
}

func record(m Metrics, kind wire.Kind, code int) {
	if m == nil {
		return
	}
	m.CommandsTotal(string(kind), code)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
