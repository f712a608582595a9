// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/transport"
)

// queueSize bounds the frames in flight in one direction.
const queueSize = 16

// Conn is one end of an in-process line. Frames written with Send arrive
// whole at the peer's Receive, so no silence timing is involved.
type Conn struct {
	// Tamper, if set, is applied to every frame this end sends. Returning nil
	// drops the frame; returning other bytes puts them on the line instead.
	Tamper func(frame []byte) []byte

	in   chan []byte
	peer *Conn

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
	sent   int
}

var _ transport.Transport = (*Conn)(nil)

// Pipe returns the two ends of a new line.
func Pipe() (*Conn, *Conn) {
	a := &Conn{in: make(chan []byte, queueSize), closed: make(chan struct{})}
	b := &Conn{in: make(chan []byte, queueSize), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *Conn) Send(ctx context.Context, adu []byte) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	c.mu.Lock()
	c.sent++
	tamper := c.Tamper
	c.mu.Unlock()

	frame := append([]byte(nil), adu...)
	if tamper != nil {
		frame = tamper(frame)
		if frame == nil {
			return nil
		}
	}

	select {
	case c.peer.in <- frame:
		return nil
	case <-c.peer.closed:
		// the line is dead but a half-duplex sender cannot tell
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-c.in:
		return frame, nil
	case <-c.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, transport.ErrTimeout
	}
}

// Drain drops frames that have already arrived.
func (c *Conn) Drain() error {
	for {
		select {
		case <-c.in:
		default:
			return nil
		}
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Sent returns the number of frames passed to Send, including dropped ones.
func (c *Conn) Sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// SetTamper replaces Tamper while the pipe is in use.
func (c *Conn) SetTamper(f func(frame []byte) []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tamper = f
}
