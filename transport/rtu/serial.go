// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
)

const (
	// Default timeout
	serialIdleTimeout = 60 * time.Second
)

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration. Timeout is the per read wait and is set to
	// one frame silence.
	serial.Config

	IdleTimeout time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
	logger       *slog.Logger
}

// connect connects to the serial port if it is not connected. Caller must hold the mutex.
func (sp *serialPort) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if sp.port == nil {
		port, err := serial.Open(&sp.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", sp.Config.Address, err)
		}
		sp.port = port
		sp.logger.Info("Serial port opened", "device", sp.Config.Address, "baud", sp.Config.BaudRate, "rs485", sp.Config.RS485.Enabled)
	}
	return nil
}

func (sp *serialPort) Close() (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closeTimer != nil {
		sp.closeTimer.Stop()
	}
	return sp.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (sp *serialPort) close() (err error) {
	if sp.port != nil {
		err = sp.port.Close()
		sp.port = nil
	}
	return
}

// touch records line activity and re-arms the idle timer. Caller must hold the mutex.
func (sp *serialPort) touch() {
	sp.lastActivity = time.Now()
	sp.startCloseTimer()
}

func (sp *serialPort) startCloseTimer() {
	if sp.IdleTimeout <= 0 {
		return
	}
	if sp.closeTimer == nil {
		sp.closeTimer = time.AfterFunc(sp.IdleTimeout, sp.closeIdle)
	} else {
		sp.closeTimer.Reset(sp.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (sp *serialPort) closeIdle() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.IdleTimeout <= 0 || sp.port == nil {
		return
	}

	if idle := time.Since(sp.lastActivity); idle >= sp.IdleTimeout {
		sp.logger.Debug("modbus: closing serial port due to idle timeout", "device", sp.Config.Address, "idle", idle)
		sp.close()
	}
}

// lineReader adapts a serial port to transport.ChunkReader. The port returns
// serial.ErrTimeout once its read timeout, one frame silence, elapses.
type lineReader struct {
	r io.Reader
}

func (l lineReader) ReadChunk(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}
