// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"errors"
	"time"

	"github.com/ffutop/modbus-rtu/transport"
)

const (
	// pollTimeout bounds each Receive so cancellation is noticed promptly.
	pollTimeout = 500 * time.Millisecond
	// ioBackoff is the pause after a line failure before the port is reopened.
	ioBackoff = time.Second
)

// Server runs an Engine against a transport: it waits for frames from the
// master and sends back whatever the engine produces.
type Server struct {
	engine    *Engine
	transport transport.Transport
}

// NewServer creates a server. It does not take ownership of t.
func NewServer(engine *Engine, t transport.Transport) *Server {
	return &Server{engine: engine, transport: t}
}

// Serve blocks until ctx is cancelled or the transport is closed.
func (s *Server) Serve(ctx context.Context) error {
	logger := s.engine.logger
	logger.Info("Slave serving", "unit", s.engine.UnitID(), "registers", s.engine.Registers().Capacity())

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := s.transport.Receive(ctx, pollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrTimeout):
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, transport.ErrClosed):
			return err
		default:
			logger.Warn("Receive failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ioBackoff):
			}
			continue
		}

		resp := s.engine.Process(frame)
		if resp == nil {
			continue
		}
		if err := s.transport.Send(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			logger.Warn("Failed to send response", "err", err)
		}
	}
}
