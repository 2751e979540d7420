package wire

import (
	"errors"
	"strconv"
	"strings"
)

// Kind identifies a request's 5-digit command code.
type Kind string

const (
	KindRegister       Kind = "00001"
	KindJoin           Kind = "00002"
	KindRoomMessage    Kind = "00003"
	KindPrivateMessage Kind = "00004"
	KindLeave          Kind = "00005"
	KindListRoomUsers  Kind = "00006"
	KindListRooms      Kind = "00007"
	KindDisconnect     Kind = "00010"
)

// ErrBadCommand marks an unrecognized command code or a payload that is
// structurally too short for its (recognized) code.
var ErrBadCommand = errors.New("bad command")

// ErrArgCount marks a Room-message/Private-message request whose declared
// count N doesn't match the number of names actually present.
var ErrArgCount = errors.New("argument count mismatch")

// Command is the decoded form of any request frame.
type Command struct {
	Kind     Kind
	Username string   // Register, Join, Leave, Disconnect
	Room     string   // Join, Leave, List-room-users
	Rooms    []string // Room-message
	Users    []string // Private-message
	Payload  string   // Room-message, Private-message
}

// Decode parses a frame interior (post `$`-stripping) into a Command. On
// error, cmd.Kind is still set to the recognized code when one could be
// read, so the caller can build a response that references it even though
// the rest of the payload didn't parse.
func Decode(frame []byte) (Command, error) {
	s := string(frame)
	if len(s) < 5 {
		return Command{}, ErrBadCommand
	}
	kind := Kind(s[:5])
	rest := s[5:]

	switch kind {
	case KindRegister:
		return Command{Kind: kind, Username: rest}, nil

	case KindJoin:
		if len(rest) != 2*NameWidth {
			return Command{Kind: kind}, ErrBadCommand
		}
		return Command{Kind: kind, Room: rest[:NameWidth], Username: rest[NameWidth:]}, nil

	case KindRoomMessage:
		rooms, payload, err := decodeFixedWidthNames(rest)
		if err != nil {
			return Command{Kind: kind}, err
		}
		return Command{Kind: kind, Rooms: rooms, Payload: payload}, nil

	case KindPrivateMessage:
		users, payload, err := decodeDelimitedNames(rest)
		if err != nil {
			return Command{Kind: kind}, err
		}
		return Command{Kind: kind, Users: users, Payload: payload}, nil

	case KindLeave:
		if len(rest) != 2*NameWidth {
			return Command{Kind: kind}, ErrBadCommand
		}
		return Command{Kind: kind, Room: rest[:NameWidth], Username: rest[NameWidth:]}, nil

	case KindListRoomUsers:
		if len(rest) != NameWidth {
			return Command{Kind: kind}, ErrBadCommand
		}
		return Command{Kind: kind, Room: rest}, nil

	case KindListRooms:
		return Command{Kind: kind}, nil

	case KindDisconnect:
		if len(rest) != NameWidth {
			return Command{Kind: kind}, ErrBadCommand
		}
		return Command{Kind: kind, Username: rest}, nil

	default:
		return Command{}, ErrBadCommand
	}
}

// decodeFixedWidthNames parses Room-message's `<NN><room20>...<payload>`
// body: N fixed-width room names back to back, followed directly by the
// free-form payload (no separator needed since every name is exactly
// NameWidth bytes).
func decodeFixedWidthNames(rest string) ([]string, string, error) {
	if len(rest) < 2 {
		return nil, "", ErrArgCount
	}
	n, err := strconv.Atoi(rest[:2])
	if err != nil || n < 0 {
		return nil, "", ErrArgCount
	}
	body := rest[2:]
	if len(body) < n*NameWidth {
		return nil, "", ErrArgCount
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = body[i*NameWidth : (i+1)*NameWidth]
	}
	return names, body[n*NameWidth:], nil
}

// decodeDelimitedNames parses Private-message's `<NN><u1>&<u2>&...#<payload>`
// body: N `&`-joined names terminated by the first '#', followed by the
// free-form payload.
func decodeDelimitedNames(rest string) ([]string, string, error) {
	if len(rest) < 2 {
		return nil, "", ErrArgCount
	}
	n, err := strconv.Atoi(rest[:2])
	if err != nil || n < 0 {
		return nil, "", ErrArgCount
	}
	body := rest[2:]
	idx := strings.IndexByte(body, '#')
	if idx == -1 {
		return nil, "", ErrArgCount
	}
	names := strings.Split(body[:idx], "&")
	if len(names) != n {
		return nil, "", ErrArgCount
	}
	return names, body[idx+1:], nil
}
