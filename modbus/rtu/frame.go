// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

// Frame is a Modbus RTU application data unit.
type Frame struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
	CRC     uint16
}

// Decode checks the size and CRC of raw and splits it into address, PDU and CRC.
// The PDU data is copied, so raw may be reused by the caller.
func Decode(raw []byte) (*Frame, error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		return nil, decodeError(TooShort, "length %d does not meet minimum %d", length, MinSize)
	}

	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if !crc.Verify(raw) {
		return nil, decodeError(CRCMismatch, "crc %04X does not match expected %04X", checksum, crc.Checksum(raw[:length-2]))
	}

	data := make([]byte, length-4)
	copy(data, raw[2:length-2])
	return &Frame{
		SlaveID: raw[0],
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: raw[1], Data: data},
		CRC:     checksum,
	}, nil
}

// DecodeRequest decodes a frame sent by a master and checks the fixed layout of
// the function codes this package knows about. Unknown function codes are handed
// through so the slave can answer them with an exception.
func DecodeRequest(raw []byte) (*Frame, error) {
	f, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	data := f.Pdu.Data
	switch f.Pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeWriteSingleRegister:
		if len(data) != 4 {
			return nil, decodeError(LengthMismatch, "function 0x%02X expects 4 data bytes, got %d", f.Pdu.FunctionCode, len(data))
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		// [Addr(2), Quant(2), ByteCount(1), Data(N)]
		if len(data) < 5 {
			return nil, decodeError(LengthMismatch, "write multiple header needs 5 bytes, got %d", len(data))
		}
		if int(data[4]) != len(data)-5 {
			return nil, decodeError(LengthMismatch, "byte count %d does not match payload %d", data[4], len(data)-5)
		}
	}
	return f, nil
}

// DecodeResponse decodes a frame sent by a slave. A 0x03 response whose byte
// count disagrees with the payload fails with ErrLengthMismatch.
func DecodeResponse(raw []byte) (*Frame, error) {
	f, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	data := f.Pdu.Data
	if f.Pdu.IsException() {
		if len(data) != 1 {
			return nil, decodeError(LengthMismatch, "exception carries %d bytes", len(data))
		}
		return f, nil
	}
	switch f.Pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		if len(data) < 1 {
			return nil, decodeError(LengthMismatch, "missing byte count")
		}
		if int(data[0]) != len(data)-1 || data[0]%2 != 0 {
			return nil, decodeError(LengthMismatch, "byte count %d does not match payload %d", data[0], len(data)-1)
		}
	case modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleRegisters:
		if len(data) != 4 {
			return nil, decodeError(LengthMismatch, "function 0x%02X expects 4 data bytes, got %d", f.Pdu.FunctionCode, len(data))
		}
	}
	return f, nil
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (f *Frame) Encode() (raw []byte, err error) {
	length := len(f.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length-2, length)
	raw[0] = f.SlaveID
	raw[1] = f.Pdu.FunctionCode
	copy(raw[2:], f.Pdu.Data)

	raw = crc.Append(raw)
	f.CRC = uint16(raw[length-1])<<8 | uint16(raw[length-2])
	return
}

// Verify verifies that resp answers the request f.
func (f *Frame) Verify(resp *Frame) error {
	// Slave address must match
	if f.SlaveID != resp.SlaveID {
		return fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, f.SlaveID)
	}
	if resp.Pdu.FunctionCode&^modbus.FuncCodeException != f.Pdu.FunctionCode {
		return fmt.Errorf("modbus: response function '0x%02X' does not match request '0x%02X'", resp.Pdu.FunctionCode, f.Pdu.FunctionCode)
	}
	return nil
}

// Exception returns the exception code of an exception frame.
func (f *Frame) Exception() (modbus.ExceptionCode, bool) {
	if !f.Pdu.IsException() || len(f.Pdu.Data) < 1 {
		return 0, false
	}
	return modbus.ExceptionCode(f.Pdu.Data[0]), true
}

// AddressQuantity returns the leading register address and the quantity (or
// value, for 0x06) fields of a request frame.
func (f *Frame) AddressQuantity() (address, quantity uint16, err error) {
	if len(f.Pdu.Data) < 4 {
		return 0, 0, decodeError(LengthMismatch, "need 4 data bytes, got %d", len(f.Pdu.Data))
	}
	return binary.BigEndian.Uint16(f.Pdu.Data[0:2]), binary.BigEndian.Uint16(f.Pdu.Data[2:4]), nil
}

// Registers returns the register values carried by a 0x03 response.
func (f *Frame) Registers() ([]uint16, error) {
	data := f.Pdu.Data
	if len(data) < 1 || int(data[0]) != len(data)-1 || data[0]%2 != 0 {
		return nil, decodeError(LengthMismatch, "malformed read response payload")
	}
	values := make([]uint16, len(data[1:])/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[1+i*2:])
	}
	return values, nil
}
