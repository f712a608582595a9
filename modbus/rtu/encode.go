// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
)

func checkSlaveID(slaveID byte) error {
	if slaveID > modbus.MaxUnicastAddress {
		return fmt.Errorf("%w: %d is reserved", modbus.ErrInvalidAddress, slaveID)
	}
	return nil
}

func encode(slaveID, functionCode byte, data []byte) ([]byte, error) {
	if err := checkSlaveID(slaveID); err != nil {
		return nil, err
	}
	f := &Frame{
		SlaveID: slaveID,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: functionCode, Data: data},
	}
	return f.Encode()
}

// EncodeReadRequest builds a Read Holding Registers (0x03) request.
func EncodeReadRequest(slaveID byte, address, quantity uint16) ([]byte, error) {
	if quantity < 1 || quantity > modbus.MaxReadQuantity {
		return nil, fmt.Errorf("%w: %d registers, must be 1..%d", modbus.ErrInvalidQuantity, quantity, modbus.MaxReadQuantity)
	}
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return encode(slaveID, modbus.FuncCodeReadHoldingRegisters, data)
}

// EncodeReadResponse builds a 0x03 response carrying values.
func EncodeReadResponse(slaveID byte, values []uint16) ([]byte, error) {
	if len(values) < 1 || len(values) > modbus.MaxReadQuantity {
		return nil, fmt.Errorf("%w: %d registers, must be 1..%d", modbus.ErrInvalidQuantity, len(values), modbus.MaxReadQuantity)
	}
	data := make([]byte, 1+2*len(values))
	data[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[1+2*i:], v)
	}
	return encode(slaveID, modbus.FuncCodeReadHoldingRegisters, data)
}

// EncodeException builds an exception response for functionCode.
func EncodeException(slaveID, functionCode byte, code modbus.ExceptionCode) ([]byte, error) {
	return encode(slaveID, functionCode|modbus.FuncCodeException, []byte{byte(code)})
}

// EncodeWriteSingleRequest builds a Write Single Register (0x06) request. The
// slave echoes the same bytes back.
func EncodeWriteSingleRequest(slaveID byte, address, value uint16) ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], value)
	return encode(slaveID, modbus.FuncCodeWriteSingleRegister, data)
}

// EncodeWriteMultipleRequest builds a Write Multiple Registers (0x10) request.
func EncodeWriteMultipleRequest(slaveID byte, address uint16, values []uint16) ([]byte, error) {
	if len(values) < 1 || len(values) > modbus.MaxWriteQuantity {
		return nil, fmt.Errorf("%w: %d registers, must be 1..%d", modbus.ErrInvalidQuantity, len(values), modbus.MaxWriteQuantity)
	}
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}
	return encode(slaveID, modbus.FuncCodeWriteMultipleRegisters, data)
}

// EncodeWriteMultipleResponse builds the 0x10 acknowledgement.
func EncodeWriteMultipleResponse(slaveID byte, address, quantity uint16) ([]byte, error) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return encode(slaveID, modbus.FuncCodeWriteMultipleRegisters, data)
}
