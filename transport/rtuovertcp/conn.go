// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/transport"
)

const (
	tcpTimeout = 10 * time.Second
	// Serial device servers pack bytes into TCP segments with their own
	// timing, so character gaps on the wire are not preserved. A frame ends
	// when it is complete or when the stream pauses this long.
	defaultSilence = 20 * time.Millisecond
)

// Conn carries raw RTU frames over a TCP byte stream, the way serial device
// servers tunnel a bus. This is not Modbus TCP: there is no MBAP header and
// the CRC stays on every frame.
type Conn struct {
	Address     string
	DialTimeout time.Duration
	Silence     time.Duration

	mu     sync.Mutex
	conn   net.Conn
	redial bool
	logger *slog.Logger
}

var _ transport.Transport = (*Conn)(nil)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for connection events and raw frames.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// WithSilence sets the pause that ends a frame.
func WithSilence(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.Silence = d
		}
	}
}

// NewClient allocates a Conn that dials address on first use and redials
// after the connection breaks.
func NewClient(address string, opts ...Option) *Conn {
	c := &Conn{
		Address:     address,
		DialTimeout: tcpTimeout,
		Silence:     defaultSilence,
		redial:      true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newAccepted wraps an accepted connection. It is not redialed once broken.
func newAccepted(conn net.Conn, opts ...Option) *Conn {
	c := &Conn{
		Address: conn.RemoteAddr().String(),
		Silence: defaultSilence,
		conn:    conn,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the remote end if there is no active connection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (c *Conn) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if !c.redial {
		return transport.ErrClosed
	}
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", transport.ErrIO, c.Address, err)
	}
	c.logger.Info("RTU over TCP connected", "addr", c.Address)
	c.conn = conn
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (c *Conn) close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Conn) Send(ctx context.Context, adu []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}

	c.logger.Debug("send frame", "addr", c.Address, "frame", hex.EncodeToString(adu))
	if _, err := c.conn.Write(adu); err != nil {
		// Close connection on write failure to force reconnect next time
		c.close()
		return fmt.Errorf("%w: failed to write to connection: %v", transport.ErrIO, err)
	}
	return nil
}

func (c *Conn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	frame, err := transport.ReadFrame(ctx, streamReader{c.conn, c.Silence}, timeout)
	if err != nil {
		if errors.Is(err, transport.ErrIO) {
			c.close()
		}
		return nil, err
	}
	c.logger.Debug("recv frame", "addr", c.Address, "frame", hex.EncodeToString(frame))
	return frame, nil
}

// Drain discards bytes already buffered on the stream.
func (c *Conn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	n, err := transport.Drain(streamReader{c.conn, c.Silence})
	if n > 0 {
		c.logger.Debug("drained stale bytes", "addr", c.Address, "bytes", n)
	}
	if err != nil {
		c.close()
	}
	return err
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redial = false
	c.close()
	return nil
}

// streamReader reads from a net.Conn with a read deadline of one silence.
type streamReader struct {
	conn    net.Conn
	silence time.Duration
}

func (s streamReader) ReadChunk(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.silence)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	if errors.Is(err, io.EOF) && n > 0 {
		return n, nil
	}
	return n, err
}
