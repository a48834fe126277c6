package rcon

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sentinel errors. ErrAuth is permanent for a given password and is never
// retried; everything else is treated as transient.
var (
	ErrAuth       = errors.New("rcon: authentication rejected")
	ErrConnection = errors.New("rcon: connection failed")
	ErrClosed     = errors.New("rcon: client closed")
)

// Client is a single authenticated RCON session with one game server.
// All command traffic is serialized through an internal mutex, so one
// Client is safe for concurrent use but commands to a server never overlap.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	addr    string
	timeout time.Duration
	nextID  int32
	closed  bool
	logger  zerolog.Logger
}

// Dial connects to addr (host:port) and authenticates with password.
// A failed handshake closes the socket before returning.
func Dial(addr, password string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}

	c := &Client{
		conn:    conn,
		addr:    addr,
		timeout: timeout,
		nextID:  rand.Int31n(1 << 20),
		logger:  log.With().Str("component", "rcon").Str("addr", addr).Logger(),
	}

	if err := c.authenticate(password); err != nil {
		conn.Close()
		return nil, err
	}

	c.logger.Debug().Msg("RCON session authenticated")
	return c, nil
}

// authenticate performs the AUTH handshake. The server signals success by
// echoing our request id in an AUTH_RESPONSE packet; a -1 or mismatched id
// means the password was rejected.
func (c *Client) authenticate(password string) error {
	id := c.requestID()

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := WritePacket(c.conn, Packet{RequestID: id, Type: TypeAuth, Body: password}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	// Some servers send an empty RESPONSE_VALUE before the auth verdict.
	for {
		resp, err := ReadPacket(c.conn)
		if err != nil {
			return fmt.Errorf("%w: auth read: %v", ErrConnection, err)
		}
		if resp.Type == TypeResponseValue && resp.RequestID == id {
			continue
		}
		if resp.Type != TypeAuthResponse || resp.RequestID != id {
			return ErrAuth
		}
		return nil
	}
}

// Execute sends a command and returns the server's response body.
// Multi-packet responses are not reassembled; Ark command output fits a
// single frame.
func (c *Client) Execute(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	id := c.requestID()
	c.conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WritePacket(c.conn, Packet{RequestID: id, Type: TypeExecCommand, Body: command}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	resp, err := ReadPacket(c.conn)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return resp.Body, nil
}

// Addr returns the server address this client is connected to.
func (c *Client) Addr() string {
	return c.addr
}

// Close shuts down the session. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) requestID() int32 {
	id := c.nextID
	c.nextID++
	if c.nextID < 0 {
		c.nextID = 1
	}
	return id
}
