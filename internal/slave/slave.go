// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave answers Modbus RTU requests from a register map.
package slave

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-rtu/internal/slave/registers"
	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
)

// State of the engine between frames.
type State int

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Stats counts frames seen by an Engine.
type Stats struct {
	Received   uint64 // frames handed to Process
	Discarded  uint64 // undecodable or addressed elsewhere
	Broadcasts uint64
	Responses  uint64 // normal responses emitted
	Exceptions uint64 // exception responses emitted
}

// Engine implements the slave side of the protocol on top of a register map.
// Process is safe for concurrent use; calls are serialized.
type Engine struct {
	unitID    byte
	registers *registers.Map
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for discarded frames and exceptions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine answering to unitID.
func NewEngine(unitID byte, regs *registers.Map, opts ...Option) (*Engine, error) {
	if !modbus.ValidUnicast(unitID) {
		return nil, fmt.Errorf("%w: unit id %d", modbus.ErrInvalidAddress, unitID)
	}
	if regs == nil {
		return nil, errors.New("slave: nil register map")
	}
	e := &Engine{
		unitID:    unitID,
		registers: regs,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) UnitID() byte {
	return e.unitID
}

func (e *Engine) Registers() *registers.Map {
	return e.registers
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Process consumes one inbound frame and returns the frame to send back, or
// nil when nothing must be sent.
func (e *Engine) Process(raw []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Processing
	defer func() { e.state = Idle }()
	e.stats.Received++

	frame, err := rtu.DecodeRequest(raw)
	malformed := errors.Is(err, rtu.ErrLengthMismatch)
	if malformed {
		// the CRC held, so address and function can be trusted
		frame = &rtu.Frame{SlaveID: raw[0], Pdu: modbus.ProtocolDataUnit{FunctionCode: raw[1]}}
	} else if err != nil {
		// Never answer a frame that cannot be validated.
		e.stats.Discarded++
		e.logger.Debug("discarding frame", "err", err, "frame", hex.EncodeToString(raw))
		return nil
	}

	broadcast := frame.SlaveID == modbus.BroadcastAddress
	if frame.SlaveID != e.unitID && !broadcast {
		e.stats.Discarded++
		e.logger.Debug("frame addressed to another slave", "slave", frame.SlaveID, "unit", e.unitID)
		return nil
	}

	if frame.Pdu.IsException() {
		// exception frames only travel from slave to master
		e.stats.Discarded++
		return nil
	}

	var out []byte
	if malformed {
		e.logger.Debug("malformed request body", "err", err, "frame", hex.EncodeToString(raw))
		out, err = rtu.EncodeException(e.unitID, frame.Pdu.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	} else {
		out, err = e.handle(frame)
	}
	if broadcast {
		e.stats.Broadcasts++
		return nil
	}
	if err != nil {
		e.logger.Error("failed to encode response", "err", err)
		return nil
	}

	if out[1]&modbus.FuncCodeException != 0 {
		e.stats.Exceptions++
		e.logger.Info("request rejected", "func", fmt.Sprintf("0x%02X", frame.Pdu.FunctionCode), "exception", modbus.ExceptionCode(out[2]))
	} else {
		e.stats.Responses++
	}
	return out
}

// handle executes a decoded request against the register map and encodes the
// answer, normal or exception.
func (e *Engine) handle(req *rtu.Frame) ([]byte, error) {
	fc := req.Pdu.FunctionCode
	var code modbus.ExceptionCode
	switch fc {
	case modbus.FuncCodeReadHoldingRegisters:
		address, quantity, _ := req.AddressQuantity()
		var values []uint16
		if values, code = e.readHoldingRegisters(address, quantity); code == 0 {
			return rtu.EncodeReadResponse(e.unitID, values)
		}
	case modbus.FuncCodeWriteSingleRegister:
		address, value, _ := req.AddressQuantity()
		if code = e.writeSingleRegister(address, value); code == 0 {
			// the answer echoes the request
			return rtu.EncodeWriteSingleRequest(e.unitID, address, value)
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		address, quantity, _ := req.AddressQuantity()
		if code = e.writeMultipleRegisters(address, quantity, req.Pdu.Data[4:]); code == 0 {
			return rtu.EncodeWriteMultipleResponse(e.unitID, address, quantity)
		}
	default:
		code = modbus.ExceptionCodeIllegalFunction
	}
	return rtu.EncodeException(e.unitID, fc, code)
}

// The register handlers return a zero code on success.

func (e *Engine) readHoldingRegisters(address, quantity uint16) ([]uint16, modbus.ExceptionCode) {
	if quantity < 1 || quantity > modbus.MaxReadQuantity {
		return nil, modbus.ExceptionCodeIllegalDataValue
	}
	values, err := e.registers.ReadRange(address, quantity)
	if err != nil {
		return nil, modbus.ExceptionCodeIllegalDataAddress
	}
	return values, 0
}

func (e *Engine) writeSingleRegister(address, value uint16) modbus.ExceptionCode {
	if err := e.registers.Write(address, value); err != nil {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	return 0
}

// writeMultipleRegisters takes the byte count and the register values that
// follow it. DecodeRequest has matched the byte count to the payload.
func (e *Engine) writeMultipleRegisters(address, quantity uint16, payload []byte) modbus.ExceptionCode {
	if quantity < 1 || quantity > modbus.MaxWriteQuantity {
		return modbus.ExceptionCodeIllegalDataValue
	}
	if int(payload[0]) != 2*int(quantity) {
		return modbus.ExceptionCodeIllegalDataValue
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(payload[1+2*i:])
	}
	if err := e.registers.WriteRange(address, values); err != nil {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	return 0
}
