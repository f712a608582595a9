// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/internal/master"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Poll holding registers of one slave",
	Example: `  modbus-rtu master --slave 1 --registers 1,3,4 --interval 2s
  modbus-rtu master --loopback --log-level debug`,
	RunE: runMaster,
}

func init() {
	addMasterFlags(masterCmd)
	masterCmd.Flags().StringP("registers", "r", "1,3,4", "Registers to poll, e.g. 1,3,4 or 0-9")
	masterCmd.Flags().DurationP("interval", "i", config.DefaultPollInterval, "Pause between two requests")
}

// addMasterFlags adds the flags shared by the commands acting as bus master.
func addMasterFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("slave", "s", 1, "Slave id to address")
	cmd.Flags().IntP("max-retries", "N", master.DefaultMaxRetries, "Resends after a lost or corrupted response")
}

func runMaster(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := slaveID(cfg.Master.SlaveID, false)
	if err != nil {
		return err
	}
	addresses, err := config.ParseAddressList(cfg.Master.Registers)
	if err != nil {
		return err
	}

	e, line, err := openMaster(ctx, cfg)
	if err != nil {
		return err
	}
	defer line.Close()

	p, err := master.NewPoller(e, id, addresses, cfg.Master.Interval)
	if err != nil {
		return err
	}
	err = p.Run(ctx)

	s := e.Stats()
	slog.Info("Master stopped", "requests", s.Requests, "frames", s.Frames, "retries", s.Retries,
		"successes", s.Successes, "timeouts", s.Timeouts, "crc_errors", s.CRCErrors,
		"exceptions", s.Exceptions, "discarded", s.Discarded)
	return err
}
