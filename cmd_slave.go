// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-rtu/internal/slave"
	"github.com/ffutop/modbus-rtu/transport"
	"github.com/ffutop/modbus-rtu/transport/rtuovertcp"
)

var slaveCmd = &cobra.Command{
	Use:   "slave",
	Short: "Serve a holding register map as a Modbus RTU slave",
	Example: `  modbus-rtu slave --unit 1 --values 12,24,36,48,60
  modbus-rtu slave --unit 17 --capacity 100 --image registers.bin`,
	RunE: runSlave,
}

func init() {
	flags := slaveCmd.Flags()
	flags.IntP("unit", "u", 1, "Unit id answered by this slave (1-247)")
	flags.Int("capacity", 0, "Number of holding registers, 0 to size the map from values or image")
	flags.String("values", "12,24,36,48,60", "Initial register values from register 0")
	flags.String("image", "", "Read-only register image of big-endian 16-bit values")
}

func runSlave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := newSlaveEngine(cfg.Slave)
	if err != nil {
		return err
	}
	defer func() {
		s := e.Stats()
		slog.Info("Slave stopped", "received", s.Received, "responses", s.Responses,
			"exceptions", s.Exceptions, "broadcasts", s.Broadcasts, "discarded", s.Discarded)
	}()

	if cfg.Transport == "rtu-over-tcp" && cfg.Tcp.Listen {
		return serveAccepted(ctx, e)
	}

	line, err := openLine(ctx, cfg)
	if err != nil {
		return err
	}
	defer line.Close()
	return slave.NewServer(e, line).Serve(ctx)
}

// serveAccepted serves device server connections one after another; the
// register map outlives every connection.
func serveAccepted(ctx context.Context, e *slave.Engine) error {
	l, err := rtuovertcp.Listen(cfg.Tcp.Address)
	if err != nil {
		return err
	}
	defer l.Close()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err = slave.NewServer(e, conn).Serve(ctx)
		conn.Close()
		if err != nil && !errors.Is(err, transport.ErrClosed) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		slog.Info("Peer disconnected, waiting for the next one")
	}
}
