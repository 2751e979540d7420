package chatserver

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomrelay/internal/registry"
	"roomrelay/internal/wire"
)

func name20(s string) string {
	return s + strings.Repeat(" ", wire.NameWidth-len(s))
}

func readFrame(t *testing.T, conn net.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := wire.NewFrameReader(conn, 64*1024)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	return string(frame)
}

func TestDriverRegistersAndJoinsOverRealConnection(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	reg := registry.New(nil)
	logger := zap.NewNop()
	d := newDriver(logger, reg, nil, serverConn, 64*1024)
	go d.run()

	w := wire.NewFrameWriter(clientConn)
	require.NoError(t, w.WriteFrame([]byte("00001"+name20("alice"))))

	reply := readFrame(t, clientConn)
	assert.True(t, strings.HasPrefix(reply, "200"))

	require.NoError(t, w.WriteFrame([]byte("00002"+name20("lobby")+name20("alice"))))
	reply = readFrame(t, clientConn)
	assert.True(t, strings.HasPrefix(reply, "200"))
}

func TestDriverRejectsNonRegisterDuringRegistering(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	reg := registry.New(nil)
	logger := zap.NewNop()
	d := newDriver(logger, reg, nil, serverConn, 64*1024)
	go d.run()

	w := wire.NewFrameWriter(clientConn)
	require.NoError(t, w.WriteFrame([]byte("00007")))
	reply := readFrame(t, clientConn)
	assert.True(t, strings.HasPrefix(reply, "420"))
}

func TestDriverDisconnectClosesConnection(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	reg := registry.New(nil)
	logger := zap.NewNop()
	d := newDriver(logger, reg, nil, serverConn, 64*1024)
	go d.run()

	w := wire.NewFrameWriter(clientConn)
	require.NoError(t, w.WriteFrame([]byte("00001" + name20("alice"))))
	readFrame(t, clientConn)

	require.NoError(t, w.WriteFrame([]byte("00010" + name20("alice"))))

	_ = clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err := clientConn.Read(buf)
	assert.Error(t, err)
}
