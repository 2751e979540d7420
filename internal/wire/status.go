package wire

import (
	"fmt"
	"strings"
)

// Status is an encodable server response. Every concrete status type
// carries its own 5-digit command code; Status.Encode produces the complete
// `$<3-digit code><5-digit command code><payload>$` frame, delimiters
// included, ready to be written to the connection as is.
type Status interface {
	Encode() []byte
	StatusCode() int
}

// BaseStatus is the generic, command-agnostic response used for protocol
// level failures: unrecognized command (400), declared/actual argument
// count mismatch (410), command from an unregistered address (420), and
// disconnect-address-not-found (462). CmdCode is the 5-digit code of the
// request that provoked the response, or "00000" when none is known (a
// frame too short to carry any command code at all).
type BaseStatus struct {
	Code    int
	CmdCode string
	Message string
}

func (s BaseStatus) StatusCode() int { return s.Code }

func (s BaseStatus) Encode() []byte {
	cmd := s.CmdCode
	if cmd == "" {
		cmd = "00000"
	}
	return []byte(fmt.Sprintf("$%03d%s%s$", s.Code, cmd, s.Message))
}

// RegistrationStatus answers a Register (00001) request.
type RegistrationStatus struct {
	Code     int
	Message  string
	Username string
}

func (s RegistrationStatus) StatusCode() int { return s.Code }

func (s RegistrationStatus) Encode() []byte {
	return []byte(fmt.Sprintf("$%03d00001%s#%s$", s.Code, pad(s.Username), s.Message))
}

// JoinStatus answers a Join (00002) request.
type JoinStatus struct {
	Code       int
	Message    string
	Room       string
	Username   string
	IsCreation bool
}

func (s JoinStatus) StatusCode() int { return s.Code }

func (s JoinStatus) Encode() []byte {
	creation := "0"
	if s.IsCreation {
		creation = "1"
	}
	return []byte(fmt.Sprintf("$%03d00002%s%s%s#%s$", s.Code, creation, pad(s.Room), pad(s.Username), s.Message))
}

// MessageStatus answers a Room-message (00003) or Private-message (00004)
// request, distinguished by ToRoom.
type MessageStatus struct {
	Code    int
	Message string
	ToRoom  bool
	Sender  string
	Room    string // set when ToRoom
	User    string // set when !ToRoom
	Payload string
}

func (s MessageStatus) StatusCode() int { return s.Code }

func (s MessageStatus) Encode() []byte {
	cmd, flag, target := "00003", "1", pad(s.Room)
	if !s.ToRoom {
		cmd, flag, target = "00004", "0", pad(s.User)
	}
	return []byte(fmt.Sprintf("$%03d%s%s%s#%s#%s#%s$", s.Code, cmd, flag, pad(s.Sender), target, s.Payload, s.Message))
}

// LeaveStatus answers a Leave (00005) request.
type LeaveStatus struct {
	Code     int
	Message  string
	Room     string
	Username string
}

func (s LeaveStatus) StatusCode() int { return s.Code }

func (s LeaveStatus) Encode() []byte {
	return []byte(fmt.Sprintf("$%03d00005%s%s#%s$", s.Code, pad(s.Room), pad(s.Username), s.Message))
}

// RoomUserListStatus answers a List-room-users (00006) request.
type RoomUserListStatus struct {
	Code    int
	Message string
	Room    string
	Users   []string
}

func (s RoomUserListStatus) StatusCode() int { return s.Code }

func (s RoomUserListStatus) Encode() []byte {
	return []byte(fmt.Sprintf("$%03d00006%s%s#%s$", s.Code, pad(s.Room), strings.Join(s.Users, "&"), s.Message))
}

// DisconnectStatus answers a Disconnect (00010) request, or reports a
// peer-reset disconnect synthesized by the driver. Addr and Room are
// empty when not applicable.
type DisconnectStatus struct {
	Code     int
	Message  string
	Username string
	Addr     string
	Room     string
}

func (s DisconnectStatus) StatusCode() int { return s.Code }

func (s DisconnectStatus) Encode() []byte {
	return []byte(fmt.Sprintf("$%03d00010%s#%s#%s#%s$", s.Code, pad(s.Username), s.Addr, s.Room, s.Message))
}

// ListRoomStatus answers a List-rooms (00007) request.
type ListRoomStatus struct {
	Code    int
	Message string
	Rooms   []string
}

func (s ListRoomStatus) StatusCode() int { return s.Code }

func (s ListRoomStatus) Encode() []byte {
	return []byte(fmt.Sprintf("$%03d00007%s#%s$", s.Code, strings.Join(s.Rooms, "&"), s.Message))
}
