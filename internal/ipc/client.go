package ipc

import (
	"fmt"
	"net"
	"time"

	"banishd/internal/engine"
)

// dialTimeout bounds the initial connection to the daemon socket.
const dialTimeout = 2 * time.Second

// Client talks to a running daemon's control socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon at the given socket path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to banishd at %s (is it running?): %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends a request and decodes the reply.
func (c *Client) roundTrip(req *Message) (*Message, error) {
	if err := WriteMessage(c.conn, req); err != nil {
		return nil, err
	}
	resp, err := ReadMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if resp.Type == MsgError {
		var ep ErrorPayload
		if err := resp.Decode(&ep); err != nil {
			return nil, fmt.Errorf("daemon reported an undecodable error: %w", err)
		}
		return nil, fmt.Errorf("daemon: %s", ep.Message)
	}
	return resp, nil
}

// expect sends a request and verifies the reply type.
func (c *Client) expect(reqType, respType MessageType) (*Message, error) {
	resp, err := c.roundTrip(&Message{Type: reqType})
	if err != nil {
		return nil, err
	}
	if resp.Type != respType {
		return nil, fmt.Errorf("unexpected reply %s to %s", resp.Type, reqType)
	}
	return resp, nil
}

// Ping checks the daemon is alive.
func (c *Client) Ping() error {
	_, err := c.expect(MsgPing, MsgPong)
	return err
}

// Status fetches the daemon's status snapshot.
func (c *Client) Status() (engine.Status, error) {
	resp, err := c.expect(MsgStatus, MsgStatusResp)
	if err != nil {
		return engine.Status{}, err
	}
	var st engine.Status
	if err := resp.Decode(&st); err != nil {
		return engine.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Pause suspends pointer hiding.
func (c *Client) Pause() error {
	_, err := c.expect(MsgPause, MsgOK)
	return err
}

// Resume re-enables pointer hiding.
func (c *Client) Resume() error {
	_, err := c.expect(MsgResume, MsgOK)
	return err
}

// Show forces the pointer visible.
func (c *Client) Show() error {
	_, err := c.expect(MsgShow, MsgOK)
	return err
}
