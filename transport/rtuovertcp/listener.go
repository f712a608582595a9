// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// Listener accepts RTU over TCP connections, for device servers configured
// to connect out to their peer.
type Listener struct {
	Address  string
	listener net.Listener
	opts     []Option
}

// Listen starts listening on address.
func Listen(address string, opts ...Option) (*Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	slog.Info("RTU over TCP listening", "addr", listener.Addr())
	return &Listener{Address: address, listener: listener, opts: opts}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Accept waits for the next connection. Cancelling ctx closes the listener.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.listener.Close()
		case <-done:
		}
	}()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	slog.Info("New RTU over TCP peer connected", "addr", conn.RemoteAddr())
	return newAccepted(conn, l.opts...), nil
}

// Close closes the listener.
func (l *Listener) Close() error {
	return l.listener.Close()
}
