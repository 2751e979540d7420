// Package chatserver wires the registry and dispatcher to live TCP
// connections: one driver per connection, running the REGISTERING ->
// COMMUNICATING -> CLOSED state machine, plus the listener that accepts
// connections and spawns drivers.
package chatserver

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"roomrelay/internal/dispatch"
	"roomrelay/internal/registry"
	"roomrelay/internal/wire"
)

// Metrics is the instrumentation a driver reports connection lifecycle
// events to. Nil is valid.
type Metrics interface {
	dispatch.Metrics
	ConnectionOpened()
	ConnectionClosed()
}

// runningSignal is the mutex-protected bool shared by a connection's
// reader and writer tasks. It is deliberately not a context: the
// writer's blocking call is registry.FlushMessageQueue, which only
// returns when the mailbox has something to deliver or has been
// released by DisconnectUser — a plain cancellation signal can't wake a
// goroutine blocked inside someone else's condition variable.
type runningSignal struct {
	mu      sync.Mutex
	running bool
}

func newRunningSignal() *runningSignal {
	return &runningSignal{running: true}
}

func (s *runningSignal) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *runningSignal) stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// driver owns one accepted connection end to end.
type driver struct {
	logger  *zap.Logger
	reg     *registry.Registry
	metrics Metrics
	conn    net.Conn
	addr    string

	frames *wire.FrameReader
	out    *wire.FrameWriter
}

func newDriver(logger *zap.Logger, reg *registry.Registry, m Metrics, conn net.Conn, maxFrameBytes int) *driver {
	addr := conn.RemoteAddr().String()
	return &driver{
		logger:  logger.With(zap.String("conn_id", uuid.NewString()), zap.String("addr", addr)),
		reg:     reg,
		metrics: m,
		conn:    conn,
		addr:    addr,
		frames:  wire.NewFrameReader(conn, maxFrameBytes),
		out:     wire.NewFrameWriter(conn),
	}
}

// run drives the connection until it is torn down, by any cause.
func (d *driver) run() {
	if d.metrics != nil {
		d.metrics.ConnectionOpened()
	}
	defer func() {
		_ = d.conn.Close()
		if d.metrics != nil {
			d.metrics.ConnectionClosed()
		}
	}()

	if !d.register() {
		return
	}

	running := newRunningSignal()
	var g errgroup.Group
	g.Go(func() error {
		d.readLoop(running)
		return nil
	})
	g.Go(func() error {
		d.writeLoop(running)
		return nil
	})
	_ = g.Wait()
}

// register implements the REGISTERING state: every frame is decoded and,
// regardless of its declared command code, only a Register (00001) frame
// is acted on. Anything else draws a 420 directly on the connection —
// there is no session yet, so there is no mailbox to route it through.
// Responses are written directly to the connection since, at this point,
// no writer task exists yet to race with.
func (d *driver) register() bool {
	for {
		frame, err := d.frames.ReadFrame()
		if err != nil {
			d.logger.Debug("connection closed before registration", zap.Error(err))
			return false
		}

		cmd, decodeErr := wire.Decode(frame)
		if decodeErr != nil || cmd.Kind != wire.KindRegister {
			status := wire.BaseStatus{Code: 420, Message: "not registered, register a username first"}
			if writeErr := d.writeStatus(status); writeErr != nil {
				d.logger.Debug("write failed during registration", zap.Error(writeErr))
				return false
			}
			continue
		}

		_, status := d.reg.Register(cmd.Username, d.addr)
		if writeErr := d.writeStatus(status); writeErr != nil {
			d.logger.Debug("write failed during registration", zap.Error(writeErr))
			return false
		}
		if status.Code == 200 {
			d.logger.Info("registered", zap.String("username", cmd.Username))
			return true
		}
	}
}

// readLoop implements the reader task of the COMMUNICATING state: decode
// each frame, dispatch it, and on a read failure synthesize the
// connection's disconnect.
func (d *driver) readLoop(running *runningSignal) {
	for running.isRunning() {
		frame, err := d.frames.ReadFrame()
		if err != nil {
			if running.isRunning() {
				synthesizeDisconnect(d.reg, d.addr, d.logger)
			}
			running.stop()
			return
		}

		cmd, decodeErr := wire.Decode(frame)
		if decodeErr != nil {
			d.handleDecodeError(cmd.Kind, decodeErr)
			continue
		}

		if cmd.Kind == wire.KindRegister {
			// A second registration attempt mid-session runs through the
			// same Register call as a first one: since d.addr is already
			// bound, a well-formed name fails closed with 401 (one
			// connection == one identity; a malformed name still draws the
			// 403 format check first) exactly as if a different connection had tried to
			// claim an address already in use, per the duplicate-register
			// scenario — no new user is created either way.
			_, status := d.reg.Register(cmd.Username, d.addr)
			d.reg.EnqueueMessage(status, []string{d.selfUsername()})
			continue
		}

		if dispatch.Dispatch(d.reg, d.metrics, d.addr, cmd) {
			d.reg.ClearConn(d.addr)
			running.stop()
			return
		}
	}
}

func (d *driver) handleDecodeError(kind wire.Kind, err error) {
	self := d.selfUsername()
	if self == "" {
		return
	}
	var status wire.BaseStatus
	switch {
	case errors.Is(err, wire.ErrArgCount):
		status = wire.BaseStatus{Code: 410, CmdCode: string(kind), Message: "argument count mismatch"}
	default:
		cmdCode := string(kind)
		status = wire.BaseStatus{Code: 400, CmdCode: cmdCode, Message: "bad command"}
	}
	d.reg.EnqueueMessage(status, []string{self})
}

// writeStatus writes one status to the connection. Status.Encode already
// yields the complete `$...$` frame, so it is written as is rather than
// wrapped a second time by a FrameWriter.
func (d *driver) writeStatus(s wire.Status) error {
	_, err := d.conn.Write(s.Encode())
	return err
}

func (d *driver) selfUsername() string {
	name, err := d.reg.GetUserByAddr(d.addr)
	if err != nil {
		return ""
	}
	return name
}

// writeLoop implements the writer task: block on the mailbox, write
// everything drained, repeat. On a write failure other than io.EOF it synthesizes the
// connection's disconnect too, in case the reader's own read hasn't
// noticed the peer is gone yet.
func (d *driver) writeLoop(running *runningSignal) {
	for running.isRunning() {
		items, err := d.reg.FlushMessageQueue(d.addr)
		if err != nil {
			running.stop()
			return
		}
		for _, item := range items {
			if writeErr := d.writeStatus(item); writeErr != nil {
				if !errors.Is(writeErr, io.EOF) && running.isRunning() {
					synthesizeDisconnect(d.reg, d.addr, d.logger)
				}
				running.stop()
				return
			}
		}
	}
}

// synthesizeDisconnect performs the same registry teardown a voluntary
// Disconnect command would, on behalf of a peer that reset the
// connection instead of asking politely. Safe to call from both the
// reader and the writer: GetUserByAddr fails closed for whichever one
// loses the race, since the winner's ClearConn call removes the address
// the loser would otherwise still find.
func synthesizeDisconnect(reg *registry.Registry, addr string, logger *zap.Logger) {
	username, err := reg.GetUserByAddr(addr)
	if err != nil {
		return
	}
	rooms, _ := reg.DisconnectUser(username)
	for _, room := range rooms {
		remaining, _ := reg.ListRoomUsers(room)
		reg.EnqueueMessage(wire.DisconnectStatus{Code: 200, Message: "disconnected", Username: username, Room: room}, remaining)
	}
	reg.ClearConn(addr)
	logger.Info("peer reset", zap.String("username", username))
}
