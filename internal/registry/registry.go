package registry

import (
	"errors"
	"strings"
	"sync"

	"roomrelay/internal/wire"
)

// ErrAddrError is returned when an operation is keyed by a peer address
// that the registry has no record of.
var ErrAddrError = errors.New("address not registered")

// ErrUserDisconnected is returned by FlushMessageQueue once the mailbox
// for the calling address has been released.
var ErrUserDisconnected = errors.New("user disconnected")

// Metrics is the subset of instrumentation the registry updates directly,
// under the same critical section that mutates the maps it's reporting
// on. Nil is a valid Metrics — every call is a no-op then.
type Metrics interface {
	SetUsersRegistered(n int)
	SetRoomsActive(n int)
}

// Registry owns every user, room and address mapping on the server. One
// mutex. Lock ordering: registry mutex first, then a Mailbox's own lock —
// never the reverse. DisconnectUser releases the user's mailbox while
// holding the registry mutex; EnqueueMessage takes a snapshot of
// mailboxes under the registry lock, then pushes to each after releasing
// it.
type Registry struct {
	mu        sync.Mutex
	users     map[string]*User
	rooms     map[string]*Room
	conns     map[string]string    // addr -> username
	mailboxes map[string]*Mailbox // addr -> mailbox, outlives DisconnectUser's removal from users
	metrics   Metrics
}

// New returns an empty registry. m may be nil.
func New(m Metrics) *Registry {
	return &Registry{
		users:     make(map[string]*User),
		rooms:     make(map[string]*Room),
		conns:     make(map[string]string),
		mailboxes: make(map[string]*Mailbox),
		metrics:   m,
	}
}

// ValidName reports whether name is an acceptable username or room name:
// exactly wire.NameWidth bytes, none of which is a protocol delimiter.
func ValidName(name string) bool {
	if len(name) != wire.NameWidth {
		return false
	}
	return !strings.ContainsAny(name, "$#&")
}

func (r *Registry) updateMetricsLocked() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetUsersRegistered(len(r.users))
	r.metrics.SetRoomsActive(len(r.rooms))
}

// Register validates name, binds it to addr as a new session, and
// returns the created User alongside the RegistrationStatus to deliver.
// On any failure the returned User is nil.
//
// Order of checks mirrors the original implementation: format first
// (403), then "this address already has an identity" (401, one
// connection == one identity), then "this name is taken" (402).
func (r *Registry) Register(name, addr string) (*User, wire.RegistrationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ValidName(name) {
		return nil, wire.RegistrationStatus{Code: 403, Message: "invalid username format", Username: name}
	}
	if _, exists := r.conns[addr]; exists {
		return nil, wire.RegistrationStatus{Code: 401, Message: "connection already registered", Username: name}
	}
	if _, taken := r.users[name]; taken {
		return nil, wire.RegistrationStatus{Code: 402, Message: "username already taken", Username: name}
	}

	u := &User{Name: name, Addr: addr, Mailbox: NewMailbox()}
	r.users[name] = u
	r.conns[addr] = name
	r.mailboxes[addr] = u.Mailbox
	r.updateMetricsLocked()
	return u, wire.RegistrationStatus{Code: 200, Message: "registered", Username: name}
}

// JoinRoom adds username to roomName, creating the room (with username as
// its creator) if it doesn't yet exist.
func (r *Registry) JoinRoom(roomName, username string) wire.JoinStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[username]; !ok {
		return wire.JoinStatus{Code: 499, Message: "user not found", Room: roomName, Username: username}
	}

	room, exists := r.rooms[roomName]
	if !exists {
		if !ValidName(roomName) {
			return wire.JoinStatus{Code: 403, Message: "invalid room name format", Room: roomName, Username: username}
		}
		room = &Room{Name: roomName, Creator: username, Members: map[string]struct{}{username: {}}}
		r.rooms[roomName] = room
		r.updateMetricsLocked()
		return wire.JoinStatus{Code: 200, Message: "room created", Room: roomName, Username: username, IsCreation: true}
	}

	if _, member := room.Members[username]; member {
		return wire.JoinStatus{Code: 498, Message: "already a member", Room: roomName, Username: username}
	}
	room.Members[username] = struct{}{}
	return wire.JoinStatus{Code: 200, Message: "joined", Room: roomName, Username: username}
}

// LeaveRoom removes username from roomName.
func (r *Registry) LeaveRoom(roomName, username string) wire.LeaveStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[username]; !ok {
		return wire.LeaveStatus{Code: 499, Message: "user not found", Room: roomName, Username: username}
	}
	room, exists := r.rooms[roomName]
	if !exists {
		return wire.LeaveStatus{Code: 450, Message: "room not found", Room: roomName, Username: username}
	}
	if _, member := room.Members[username]; !member {
		return wire.LeaveStatus{Code: 451, Message: "not a member of room", Room: roomName, Username: username}
	}
	delete(room.Members, username)
	return wire.LeaveStatus{Code: 200, Message: "left", Room: roomName, Username: username}
}

// DisconnectUser removes username from the registry entirely: every room
// it was a member of, and the users table. It returns the names of the
// rooms the user was removed from (for the caller to fan out
// notifications to the remaining members) and the DisconnectStatus to
// report for the user itself. The user's mailbox is released as part of
// this call, regardless of outcome for rooms, so its writer task unblocks
// promptly.
func (r *Registry) DisconnectUser(username string) ([]string, wire.DisconnectStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return nil, wire.DisconnectStatus{Code: 461, Message: "user not found", Username: username}
	}

	var rooms []string
	for name, room := range r.rooms {
		if _, member := room.Members[username]; member {
			delete(room.Members, username)
			rooms = append(rooms, name)
		}
	}

	user.Mailbox.ReleaseOnDisconnect()
	delete(r.users, username)
	r.updateMetricsLocked()
	return rooms, wire.DisconnectStatus{Code: 200, Message: "disconnected", Username: username}
}

// ClearConn removes the addr -> username mapping, separate from
// DisconnectUser because the connection's lifecycle (one per address) and
// a user's session lifetime (which can outlive a crashed write loop just
// long enough to drain a final mailbox flush) are distinct concerns. This
// is also what finally retires addr's entry in the mailbox side table, so
// a FlushMessageQueue call racing DisconnectUser still has one last chance
// to drain whatever was pushed before the disconnect.
func (r *Registry) ClearConn(addr string) wire.BaseStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[addr]; !ok {
		return wire.BaseStatus{Code: 462, CmdCode: string(wire.KindDisconnect), Message: "address not found"}
	}
	delete(r.conns, addr)
	delete(r.mailboxes, addr)
	return wire.BaseStatus{Code: 200, CmdCode: string(wire.KindDisconnect), Message: "connection cleared"}
}

// GetUserByAddr resolves the username currently bound to addr.
func (r *Registry) GetUserByAddr(addr string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.conns[addr]
	if !ok {
		return "", ErrAddrError
	}
	return name, nil
}

// HasRoom reports whether roomName currently exists.
func (r *Registry) HasRoom(roomName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomName]
	return ok
}

// HasUser reports whether username is currently registered.
func (r *Registry) HasUser(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[username]
	return ok
}

// HasAddr reports whether addr currently maps to a username.
func (r *Registry) HasAddr(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[addr]
	return ok
}

// ListRoomUsers returns the member names of roomName. ok is false if the
// room doesn't exist.
func (r *Registry) ListRoomUsers(roomName string) (names []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, exists := r.rooms[roomName]
	if !exists {
		return nil, false
	}
	names = make([]string, 0, len(room.Members))
	for name := range room.Members {
		names = append(names, name)
	}
	return names, true
}

// ListRooms returns every currently existing room name.
func (r *Registry) ListRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

// Stats returns the current user and room counts, read under a single
// lock/unlock pair.
func (r *Registry) Stats() (users, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), len(r.rooms)
}

// EnqueueMessage looks up the mailbox for each of recipients (skipping
// unknown names silently — callers have already validated existence
// where the protocol requires it) and pushes status to each, releasing
// the registry lock before touching any mailbox so a slow mailbox
// consumer never blocks unrelated registry operations.
func (r *Registry) EnqueueMessage(status wire.Status, recipients []string) {
	r.mu.Lock()
	boxes := make([]*Mailbox, 0, len(recipients))
	for _, name := range recipients {
		if u, ok := r.users[name]; ok {
			boxes = append(boxes, u.Mailbox)
		}
	}
	r.mu.Unlock()

	for _, box := range boxes {
		box.Push(status)
	}
}

// FlushMessageQueue blocks until the mailbox owned by addr has something
// to deliver or has been released. It is the sole operation the
// connection driver's writer task calls in its main loop.
//
// It resolves addr through the mailbox side table rather than re-deriving
// the mailbox from r.conns/r.users: DisconnectUser removes username from
// r.users (and releases its mailbox's latch) before the driver gets
// around to calling ClearConn, so a lookup that required the user to
// still be present in r.users would make anything pushed before the
// disconnect undeliverable. The side table is only retired by ClearConn,
// so one last drain after a disconnect is always possible, consistent
// with Mailbox.PopAll's own drain-then-sentinel contract.
func (r *Registry) FlushMessageQueue(addr string) ([]wire.Status, error) {
	r.mu.Lock()
	box, ok := r.mailboxes[addr]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUserDisconnected
	}

	items, ok := box.PopAll()
	if !ok {
		return nil, ErrUserDisconnected
	}
	statuses := make([]wire.Status, len(items))
	for i, it := range items {
		statuses[i] = it.(wire.Status)
	}
	return statuses, nil
}
