// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"time"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	// Header should be at least 7 bytes to cover ByteCount for 0x10.
	// [SlaveID, Func, Appd1, Appd2, Appd3, Appd4/ByteCount]

	switch funcCode {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return ReadRequestSize, nil
	case modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		byteCount := int(header[6])
		// Total = 7 (Header up to ByteCount) + N (Data) + 2 (CRC)
		return 7 + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}

// Complete reports whether buf already holds one whole frame, request or
// response, with a valid CRC. Transports use it to return a frame without
// waiting for the trailing silence.
func Complete(buf []byte) bool {
	if len(buf) < MinSize {
		return false
	}
	fc := buf[1]
	var candidates []int
	if fc&modbus.FuncCodeException != 0 {
		candidates = []int{ExceptionSize}
	} else {
		if n, err := CalculateRequestLength(fc, buf); err == nil {
			candidates = append(candidates, n)
		}
		// responses that differ from the request layout
		switch fc {
		case modbus.FuncCodeReadHoldingRegisters:
			candidates = append(candidates, 3+int(buf[2])+2)
		case modbus.FuncCodeWriteMultipleRegisters:
			candidates = append(candidates, ReadRequestSize)
		}
	}
	for _, n := range candidates {
		if len(buf) == n && crc.Verify(buf) {
			return true
		}
	}
	return false
}

// FrameDelay returns the 3.5 character silence that delimits RTU frames.
// Above 19200 baud a fixed 1750us is used.
// See MODBUS over Serial Line - Specification and Implementation Guide (page 13).
func FrameDelay(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baudRate) * time.Microsecond
}

// TransmitTime estimates how long chars characters take to leave the wire.
func TransmitTime(baudRate, chars int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	// 11 bits per character: start, 8 data, parity or second stop, stop.
	perChar := time.Duration(11*1000000/baudRate) * time.Microsecond
	return perChar * time.Duration(chars)
}
