// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-rtu/internal/config"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
	"github.com/grid-x/serial"
)

// Port is a transport.Transport over a local serial line, RS232 or RS485.
// The device is opened lazily and closed again after IdleTimeout without traffic.
type Port struct {
	serialPort

	// frameEnd is when the last frame on the line finished. Guarded by mu.
	frameEnd time.Time
}

var _ transport.Transport = (*Port)(nil)

// Option configures a Port.
type Option func(*Port)

// WithLogger sets the logger used for port events and raw frames.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Port) {
		p.logger = logger
	}
}

// NewPort allocates a Port for the serial settings in cfg.
func NewPort(cfg config.SerialConfig, opts ...Option) *Port {
	p := &Port{}

	// Map internal config to serial.Config
	p.Config.Address = cfg.Device
	p.Config.BaudRate = cfg.BaudRate
	p.Config.DataBits = cfg.DataBits
	p.Config.StopBits = cfg.StopBits
	p.Config.Parity = cfg.Parity
	p.Config.Timeout = rtupacket.FrameDelay(cfg.BaudRate)
	if cfg.RS485 {
		p.Config.RS485 = serial.RS485Config{
			Enabled:            true,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		}
	}

	p.IdleTimeout = cfg.IdleTimeout
	if p.IdleTimeout == 0 {
		p.IdleTimeout = serialIdleTimeout
	}
	p.logger = slog.Default()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect opens the serial device if it is not open yet.
func (p *Port) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connect(ctx)
}

// Send writes adu after making sure the line has been quiet for at least one
// frame silence since the previous frame ended.
func (p *Port) Send(ctx context.Context, adu []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrIO, err)
	}

	if gap := rtupacket.FrameDelay(p.BaudRate) - time.Since(p.frameEnd); gap > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gap):
		}
	}

	p.logger.Debug("send frame", "device", p.Address, "frame", hex.EncodeToString(adu))
	if _, err := p.port.Write(adu); err != nil {
		p.close()
		return fmt.Errorf("%w: write %s: %v", transport.ErrIO, p.Address, err)
	}
	p.touch()
	// Write returns once the driver has the bytes, not once they are out.
	p.frameEnd = time.Now().Add(rtupacket.TransmitTime(p.BaudRate, len(adu)))
	return nil
}

// Receive returns the next frame on the line. It waits at most timeout for
// the first byte.
func (p *Port) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrIO, err)
	}

	frame, err := transport.ReadFrame(ctx, lineReader{p.port}, timeout)
	if err != nil {
		if errors.Is(err, transport.ErrIO) {
			p.close()
		}
		return nil, err
	}
	p.touch()
	p.frameEnd = time.Now()
	p.logger.Debug("recv frame", "device", p.Address, "frame", hex.EncodeToString(frame))
	return frame, nil
}

// Drain discards bytes still arriving on the line, such as a response to a
// request that was abandoned.
func (p *Port) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	n, err := transport.Drain(lineReader{p.port})
	if n > 0 {
		p.logger.Debug("drained stale bytes", "device", p.Address, "bytes", n)
	}
	if err != nil {
		p.close()
	}
	return err
}
