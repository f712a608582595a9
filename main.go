// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-rtu/internal/config"
)

var (
	cfgFile  string
	loopback bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "modbus-rtu",
	Short: "Modbus RTU master and slave over serial lines",
	Long: `modbus-rtu speaks Modbus RTU on a serial line, or on a serial device
server reached over TCP. It can serve a holding register map as a slave, or
poll, read and write the registers of a slave as the bus master.

Examples:
  # Serve registers 12,24,36,48,60 as unit 1 on /dev/ttyUSB0
  modbus-rtu slave --device /dev/ttyUSB0 --baud 9600

  # Poll registers 1, 3 and 4 of slave 1 every two seconds
  modbus-rtu master --registers 1,3,4 --interval 2s

  # Read 5 registers through a device server
  modbus-rtu read --transport rtu-over-tcp --address 192.168.1.100:4001 --start 0 --count 5`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		setupLogger(cfg.Log)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to config file")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Log file path, stdout when empty")

	flags.String("transport", "rtu", "Line transport: rtu, rtu-over-tcp")
	flags.StringP("device", "p", "/dev/ttyUSB0", "Serial port device name")
	flags.IntP("baud", "b", 9600, "Serial port speed")
	flags.String("parity", "N", "Parity: N, E, O")
	flags.DurationP("timeout", "t", config.DefaultSerialTimeout, "Response timeout, frame silence excluded")
	flags.Bool("rs485", false, "Drive RTS for an RS485 transceiver")
	flags.StringP("address", "A", "127.0.0.1:4001", "Device server address for rtu-over-tcp")
	flags.Bool("listen", false, "Accept the device server connection instead of dialing it")
	flags.BoolVar(&loopback, "loopback", false, "Talk to an in-process slave instead of a line")

	rootCmd.AddCommand(slaveCmd)
	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
