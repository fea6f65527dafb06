// Package client implements a roomchat protocol client over TCP or TLS.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/NicolasHaas/roomchat/pkg/protocol"
)

// Event is one frame received from the server.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the event into one of the protocol response types.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Raw, v); err != nil {
		return fmt.Errorf("client: decode %s: %w", e.Type, err)
	}
	return nil
}

// Options controls how Dial connects.
type Options struct {
	TLS bool // wrap the connection in TLS
	// InsecureSkipVerify accepts the server's self-signed certificate.
	InsecureSkipVerify bool
	// Buffer is the capacity of the Events channel (default 64).
	Buffer int
}

// Client is a connection to a roomchat server.
type Client struct {
	conn   net.Conn
	mu     sync.Mutex // serializes writes
	events chan Event
	done   chan struct{}
}

// Dial connects to the server and starts receiving events.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	var (
		conn net.Conn
		err  error
	)
	if opts.TLS {
		dialer := &tls.Dialer{Config: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // self-signed server certs
			MinVersion:         tls.VersionTLS13,
		}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return newClient(conn, opts.Buffer), nil
}

func newClient(conn net.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	c := &Client{
		conn:   conn,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go c.receive()
	return c
}

// receive reads frames until the connection ends, then closes Events.
func (c *Client) receive() {
	defer close(c.done)
	defer close(c.events)

	reader := protocol.NewFrameReader(c.conn, protocol.MaxFrameSize)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				slog.Debug("connection closed")
				return
			}
			slog.Error("read error", "err", err)
			return
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &head); err != nil {
			slog.Warn("undecodable frame", "err", err)
			continue
		}
		c.events <- Event{Type: head.Type, Raw: frame}
	}
}

// Events returns the stream of frames received from the server. It is
// closed when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Next returns the next event, or an error if ctx ends or the connection
// closes first.
func (c *Client) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Expect skips events until one of type typ arrives and decodes it into v.
func (c *Client) Expect(ctx context.Context, typ string, v any) error {
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return fmt.Errorf("client: waiting for %s: %w", typ, err)
		}
		if ev.Type != typ {
			continue
		}
		if v == nil {
			return nil
		}
		return ev.Decode(v)
	}
}

// Send writes one request to the server.
func (c *Client) Send(req *protocol.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteFrame(c.conn, req)
}

func (c *Client) Auth(username, password string) error {
	return c.Send(&protocol.Request{Type: protocol.TypeAuth, Username: username, Password: password})
}

func (c *Client) Register(username, password string) error {
	return c.Send(&protocol.Request{Type: protocol.TypeRegister, Username: username, Password: password})
}

func (c *Client) CreateRoom(name string, private bool) error {
	return c.Send(&protocol.Request{Type: protocol.TypeCreateRoom, RoomName: name, IsPrivate: private})
}

func (c *Client) JoinRoom(name string) error {
	return c.Send(&protocol.Request{Type: protocol.TypeJoinRoom, RoomName: name})
}

func (c *Client) LeaveRoom() error {
	return c.Send(&protocol.Request{Type: protocol.TypeLeaveRoom})
}

// Say sends a chat line to the current room.
func (c *Client) Say(text string) error {
	return c.Send(&protocol.Request{Type: protocol.TypeMessage, Message: text})
}

func (c *Client) ListRooms() error {
	return c.Send(&protocol.Request{Type: protocol.TypeListRooms})
}

func (c *Client) RoomInfo() error {
	return c.Send(&protocol.Request{Type: protocol.TypeRoomInfo})
}

func (c *Client) ChatHistory(room string) error {
	return c.Send(&protocol.Request{Type: protocol.TypeChatHistory, RoomName: room})
}

func (c *Client) Leaderboard() error {
	return c.Send(&protocol.Request{Type: protocol.TypeLeaderboard})
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done returns a channel that's closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
