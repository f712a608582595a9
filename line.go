// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/internal/master"
	"github.com/ffutop/modbus-rtu/internal/slave"
	"github.com/ffutop/modbus-rtu/internal/slave/registers"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
	"github.com/ffutop/modbus-rtu/transport/local"
	rtuport "github.com/ffutop/modbus-rtu/transport/rtu"
	"github.com/ffutop/modbus-rtu/transport/rtuovertcp"
)

// openLine opens the configured transport. With --listen it waits for the
// device server to connect.
func openLine(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case "rtu":
		p := rtuport.NewPort(cfg.Serial)
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		return p, nil
	case "rtu-over-tcp":
		if cfg.Tcp.Listen {
			l, err := rtuovertcp.Listen(cfg.Tcp.Address)
			if err != nil {
				return nil, err
			}
			defer l.Close()
			c, err := l.Accept(ctx)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		c := rtuovertcp.NewClient(cfg.Tcp.Address)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// buildRegisters creates the slave register map: the configured values, then
// the register image on top. Without an explicit capacity the map is as large
// as the values or the image, whichever is larger.
func buildRegisters(cfg config.SlaveConfig) (*registers.Map, error) {
	values, err := config.ParseAddressList(cfg.Values)
	if err != nil {
		return nil, fmt.Errorf("invalid register values: %w", err)
	}

	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = len(values)
		if cfg.Image != "" {
			fi, err := os.Stat(cfg.Image)
			if err != nil {
				return nil, fmt.Errorf("failed to stat register image: %w", err)
			}
			if n := int(fi.Size() / 2); n > capacity {
				capacity = n
			}
		}
	}
	if capacity < len(values) {
		return nil, fmt.Errorf("%d initial values do not fit %d registers", len(values), capacity)
	}
	if capacity == 0 {
		return nil, errors.New("register map is empty: set values, capacity or image")
	}

	regs := registers.New(capacity)
	if len(values) > 0 {
		if err := regs.WriteRange(0, values); err != nil {
			return nil, err
		}
	}
	if cfg.Image != "" {
		n, err := regs.LoadImage(cfg.Image)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded register image", "path", cfg.Image, "registers", n)
	}
	return regs, nil
}

func newSlaveEngine(cfg config.SlaveConfig) (*slave.Engine, error) {
	regs, err := buildRegisters(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.UnitID < 1 || cfg.UnitID > 247 {
		return nil, fmt.Errorf("unit id %d out of range 1..247", cfg.UnitID)
	}
	return slave.NewEngine(byte(cfg.UnitID), regs)
}

// startLoopback serves the configured slave on one end of an in-process line
// and returns the other end.
func startLoopback(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	e, err := newSlaveEngine(cfg.Slave)
	if err != nil {
		return nil, err
	}
	line, peer := local.Pipe()
	go func() {
		defer peer.Close()
		if err := slave.NewServer(e, peer).Serve(ctx); err != nil {
			slog.Error("Loopback slave stopped", "err", err)
		}
	}()
	return line, nil
}

// openMaster opens the line and builds a master engine over it. The response
// timeout covers the configured margin plus the frame silence of the line.
func openMaster(ctx context.Context, cfg *config.Config) (*master.Engine, transport.Transport, error) {
	var (
		line transport.Transport
		err  error
	)
	if loopback {
		line, err = startLoopback(ctx, cfg)
	} else {
		line, err = openLine(ctx, cfg)
	}
	if err != nil {
		return nil, nil, err
	}

	timeout := cfg.Serial.Timeout + rtu.FrameDelay(cfg.Serial.BaudRate)
	e := master.NewEngine(line,
		master.WithTimeout(timeout),
		master.WithMaxRetries(cfg.Master.MaxRetries))
	return e, line, nil
}

func slaveID(id int, allowBroadcast bool) (byte, error) {
	if (id == 0 && allowBroadcast) || (id >= 1 && id <= 247) {
		return byte(id), nil
	}
	return 0, fmt.Errorf("slave id %d out of range 1..247", id)
}
