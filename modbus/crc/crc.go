// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the CRC-16 used by Modbus RTU frames
// (reflected polynomial 0xA001, initial value 0xFFFF, no final xor).
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum returns the Modbus CRC of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// Append appends the checksum of b to b in wire order (low byte first).
func Append(b []byte) []byte {
	sum := Checksum(b)
	return append(b, byte(sum), byte(sum>>8))
}

// Verify recomputes the checksum over all but the last two bytes and compares it
// with the little-endian trailer. Inputs shorter than two bytes never verify.
func Verify(b []byte) bool {
	n := len(b)
	if n < 2 {
		return false
	}
	return Checksum(b[:n-2]) == uint16(b[n-1])<<8|uint16(b[n-2])
}
