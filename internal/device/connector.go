package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Default dial timeout when the device config gives none
	defaultDialTimeout = 5 * time.Second

	// Per-command read/write deadline on the terminal channel
	commandTimeout = 10 * time.Second
)

// Identity is one enrolled user as reported by a terminal.
type Identity struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Badge string `json:"badge,omitempty"`
}

// Punch is one raw scan as reported by a terminal. Timestamp is the
// terminal's local clock formatted "2006-01-02 15:04:05"; Direction is
// "in", "out" or empty when the terminal did not tag the scan.
type Punch struct {
	UID       string `json:"uid"`
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction,omitempty"`
}

// Connector holds one session to a physical terminal over its JSON
// command channel. A Connector is single-use: Connect once, drain it,
// Disconnect. Operations on the same instance must not run concurrently.
type Connector struct {
	name    string
	addr    string
	timeout time.Duration
	logger  zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewConnector creates a connector for the terminal at address:port.
// A non-positive timeout falls back to the default dial timeout.
func NewConnector(name, address string, port int, timeout time.Duration, logger zerolog.Logger) *Connector {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &Connector{
		name:    name,
		addr:    fmt.Sprintf("%s:%d", address, port),
		timeout: timeout,
		logger:  logger.With().Str("terminal", name).Str("addr", fmt.Sprintf("%s:%d", address, port)).Logger(),
	}
}

// Name returns the configured display name of the terminal.
func (c *Connector) Name() string {
	return c.name
}

// Connect opens the session. It returns false on any network or protocol
// failure; it never panics across this boundary.
func (c *Connector) Connect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return true
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.DialContext(ctx, "ws://"+c.addr+"/terminal", nil)
	if err != nil {
		c.logger.Debug().Err(err).Msg("terminal connect failed")
		return false
	}

	c.conn = conn
	c.connected = true
	c.logger.Debug().Msg("terminal connected")
	return true
}

// IsConnected reports whether the session is open.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ListIdentities fetches the terminal's enrolled users. It returns an
// empty slice if the connector is not connected or the command fails.
func (c *Connector) ListIdentities() []Identity {
	var reply struct {
		Users []Identity `json:"users"`
	}
	if err := c.exchange("users", &reply); err != nil {
		c.logger.Debug().Err(err).Msg("list identities failed")
		return nil
	}
	return reply.Users
}

// FetchEvents fetches the terminal's raw punch log. It returns an empty
// slice if the connector is not connected or the command fails.
func (c *Connector) FetchEvents() []Punch {
	var reply struct {
		Records []Punch `json:"records"`
	}
	if err := c.exchange("attlog", &reply); err != nil {
		c.logger.Debug().Err(err).Msg("fetch events failed")
		return nil
	}
	return reply.Records
}

// Metadata fetches device details (serial number, firmware, platform).
// Best-effort: an empty map on any failure.
func (c *Connector) Metadata() map[string]string {
	meta := map[string]string{}
	if err := c.exchange("info", &meta); err != nil {
		c.logger.Debug().Err(err).Msg("metadata fetch failed")
		return map[string]string{}
	}
	return meta
}

// Disconnect closes the session. Idempotent; safe to call even if the
// connector never connected.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.connected {
		c.logger.Debug().Msg("terminal disconnected")
	}
	c.connected = false
}

// exchange sends one command object and decodes the single JSON reply.
func (c *Connector) exchange(cmd string, reply interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(commandTimeout))
	if err := c.conn.WriteJSON(map[string]string{"cmd": cmd}); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(commandTimeout))
	if err := c.conn.ReadJSON(reply); err != nil {
		return fmt.Errorf("read %s reply: %w", cmd, err)
	}
	return nil
}
