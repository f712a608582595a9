// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	readStart uint16
	readCount uint16
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read holding registers (FC03) once",
	Example: `  modbus-rtu read --slave 1 --start 0 --count 5
  modbus-rtu read --loopback --start 1 --count 2`,
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <address> <value>...",
	Short: "Write holding registers (FC06, FC10 for several values)",
	Long: `Write one register with Write Single Register (0x06), or consecutive
registers with Write Multiple Registers (0x10). Slave 0 broadcasts the write;
broadcasts are never acknowledged.`,
	Example: `  modbus-rtu write --slave 1 2 4660
  modbus-rtu write --slave 1 0 1 2 3`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWrite,
}

func init() {
	addMasterFlags(readCmd)
	readCmd.Flags().Uint16VarP(&readStart, "start", "a", 0, "Starting register address")
	readCmd.Flags().Uint16VarP(&readCount, "count", "n", 1, "Number of registers to read")

	addMasterFlags(writeCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := slaveID(cfg.Master.SlaveID, false)
	if err != nil {
		return err
	}

	e, line, err := openMaster(ctx, cfg)
	if err != nil {
		return err
	}
	defer line.Close()

	values, err := e.ReadRegisters(ctx, id, readStart, readCount)
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Printf("%5d  %5d  0x%04X\n", int(readStart)+i, v, v)
	}
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := slaveID(cfg.Master.SlaveID, true)
	if err != nil {
		return err
	}
	address, err := parseRegister(args[0])
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	values := make([]uint16, 0, len(args)-1)
	for _, arg := range args[1:] {
		v, err := parseRegister(arg)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		values = append(values, v)
	}

	e, line, err := openMaster(ctx, cfg)
	if err != nil {
		return err
	}
	defer line.Close()

	if len(values) == 1 {
		err = e.WriteRegister(ctx, id, address, values[0])
	} else {
		err = e.WriteRegisters(ctx, id, address, values)
	}
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d register(s) at %d\n", len(values), address)
	return nil
}

// parseRegister accepts decimal or 0x-prefixed hexadecimal.
func parseRegister(s string) (uint16, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	n, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
