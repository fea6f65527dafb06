package server

import (
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/roomchat/pkg/protocol"
)

// Conn is a client connection as seen by a session. ReadFrame is only called
// by the owning session; Send may be called from any goroutine.
type Conn interface {
	ReadFrame() ([]byte, error)
	Send(frame []byte) error
	Close() error
	RemoteAddr() string
}

// streamConn carries newline-delimited JSON over a byte stream (TCP or TLS).
type streamConn struct {
	conn         net.Conn
	reader       *protocol.FrameReader
	writeTimeout time.Duration

	mu sync.Mutex // serializes writes
}

func newStreamConn(conn net.Conn, maxFrame int, writeTimeout time.Duration) *streamConn {
	return &streamConn{
		conn:         conn,
		reader:       protocol.NewFrameReader(conn, maxFrame),
		writeTimeout: writeTimeout,
	}
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	return c.reader.ReadFrame()
}

// Send writes one encoded frame. A write that exceeds the deadline fails and
// leaves the connection unusable; the owning session notices on its next read.
func (c *streamConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.conn.Write(frame)
	return err
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

func (c *streamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
