// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol data unit and the code tables shared by the
// RTU codec, the slave engine and the master engine.
package modbus

import (
	"errors"
	"fmt"
)

// Function Codes
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10

	// FuncCodeException is or'ed into the function code of an exception response.
	FuncCodeException = 0x80
)

// Protocol limits for holding register access.
const (
	MaxReadQuantity  = 125
	MaxWriteQuantity = 123
)

// Slave addresses
const (
	BroadcastAddress  = 0
	MinUnicastAddress = 1
	MaxUnicastAddress = 247
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&FuncCodeException != 0
}

// ExceptionCode is the one byte payload of an exception response.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue   ExceptionCode = 0x03
)

func (e ExceptionCode) String() string {
	switch e {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	default:
		return fmt.Sprintf("unknown exception (0x%02X)", byte(e))
	}
}

// Error makes an exception code usable as an error value.
func (e ExceptionCode) Error() string {
	return "modbus: exception " + e.String()
}

// ExceptionError is returned when a slave answered with an exception frame.
type ExceptionError struct {
	SlaveID       byte
	FunctionCode  byte
	ExceptionCode ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: slave %d rejected function 0x%02X: %s", e.SlaveID, e.FunctionCode, e.ExceptionCode)
}

// Unwrap allows errors.Is(err, ExceptionCodeIllegalDataAddress).
func (e *ExceptionError) Unwrap() error {
	return e.ExceptionCode
}

var (
	ErrInvalidAddress  = errors.New("modbus: invalid slave address")
	ErrInvalidQuantity = errors.New("modbus: invalid quantity")
)

// ValidUnicast reports whether id addresses exactly one slave.
func ValidUnicast(id byte) bool {
	return id >= MinUnicastAddress && id <= MaxUnicastAddress
}
