// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master drives request/response transactions against Modbus RTU
// slaves: one outstanding request, bounded waits and retries.
package master

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
)

// State of the transaction state machine.
type State int

const (
	Idle State = iota
	AwaitingResponse
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting response"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PendingRequest is the one transaction in flight.
type PendingRequest struct {
	SlaveID  byte
	Function byte
	Address  uint16
	Quantity uint16
	// Issued is when the latest attempt was sent.
	Issued  time.Time
	Retries int

	adu []byte
}

// verify reports whether resp comes from the addressed slave and answers the
// requested function, normally or with an exception.
func (r *PendingRequest) verify(resp *rtu.Frame) error {
	req := rtu.Frame{SlaveID: r.SlaveID, Pdu: modbus.ProtocolDataUnit{FunctionCode: r.Function}}
	return req.Verify(resp)
}

// Engine is the master side of the protocol. Transactions are serialized:
// concurrent callers wait for the bus.
type Engine struct {
	transport transport.Transport
	opts      *engineOptions
	logger    *slog.Logger

	// bus is held for the whole transaction.
	bus sync.Mutex
	// quietUntil is the deadline of the last abandoned attempt. Until then the
	// slave may still answer it. Guarded by bus.
	quietUntil time.Time

	mu      sync.Mutex
	state   State
	pending *PendingRequest

	stats counters
}

// NewEngine creates an engine that talks over t.
func NewEngine(t transport.Transport, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Engine{
		transport: t,
		opts:      o,
		logger:    o.logger,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns a copy of the request in flight, if any.
func (e *Engine) Pending() (PendingRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		return PendingRequest{}, false
	}
	return *e.pending, true
}

func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

func (e *Engine) setState(to State, pending *PendingRequest) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.pending = pending
	e.mu.Unlock()

	if e.opts.onState != nil && from != to {
		e.opts.onState(from, to)
	}
}

// Request reads one holding register and reports how the transaction ended.
func (e *Engine) Request(ctx context.Context, slaveID byte, address uint16) Outcome {
	return e.read(ctx, slaveID, address, 1)
}

// ReadRegisters reads quantity holding registers starting at address.
func (e *Engine) ReadRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	o := e.read(ctx, slaveID, address, quantity)
	if err := o.AsError(); err != nil {
		return nil, err
	}
	return o.Values, nil
}

// WriteRegister writes one holding register. A broadcast write (slave 0) is
// sent once and never acknowledged.
func (e *Engine) WriteRegister(ctx context.Context, slaveID byte, address, value uint16) error {
	adu, err := rtu.EncodeWriteSingleRequest(slaveID, address, value)
	if err != nil {
		return err
	}
	req := &PendingRequest{SlaveID: slaveID, Function: modbus.FuncCodeWriteSingleRegister, Address: address, Quantity: 1, adu: adu}
	return e.transact(ctx, req).AsError()
}

// WriteRegisters writes consecutive holding registers starting at address.
func (e *Engine) WriteRegisters(ctx context.Context, slaveID byte, address uint16, values []uint16) error {
	adu, err := rtu.EncodeWriteMultipleRequest(slaveID, address, values)
	if err != nil {
		return err
	}
	req := &PendingRequest{SlaveID: slaveID, Function: modbus.FuncCodeWriteMultipleRegisters, Address: address, Quantity: uint16(len(values)), adu: adu}
	return e.transact(ctx, req).AsError()
}

func (e *Engine) read(ctx context.Context, slaveID byte, address, quantity uint16) Outcome {
	invalid := Outcome{Kind: InvalidRequest, SlaveID: slaveID, Function: modbus.FuncCodeReadHoldingRegisters, Address: address}
	if slaveID == modbus.BroadcastAddress {
		invalid.Err = fmt.Errorf("%w: reads cannot be broadcast", modbus.ErrInvalidAddress)
		return invalid
	}
	adu, err := rtu.EncodeReadRequest(slaveID, address, quantity)
	if err != nil {
		invalid.Err = err
		return invalid
	}
	req := &PendingRequest{SlaveID: slaveID, Function: modbus.FuncCodeReadHoldingRegisters, Address: address, Quantity: quantity, adu: adu}
	return e.transact(ctx, req)
}

// transact runs the state machine for req: Idle, AwaitingResponse, Done, and
// back to Idle.
func (e *Engine) transact(ctx context.Context, req *PendingRequest) (outcome Outcome) {
	e.bus.Lock()
	defer e.bus.Unlock()

	e.stats.requests.Add(1)
	defer func() {
		e.stats.record(outcome)
		e.setState(Done, nil)
		e.setState(Idle, nil)
	}()

	if err := e.settle(ctx); err != nil {
		return Outcome{Kind: Canceled, SlaveID: req.SlaveID, Function: req.Function, Address: req.Address, Err: err}
	}

	for {
		// Anything still on the line belongs to an earlier transaction.
		if err := e.transport.Drain(); err != nil {
			e.logger.Debug("drain before send failed", "err", err)
		}

		req.Issued = time.Now()
		e.setState(AwaitingResponse, req)
		e.stats.frames.Add(1)

		outcome, retry := e.attempt(ctx, req)
		outcome.Attempts = req.Retries + 1
		if !retry || req.Retries >= e.opts.maxRetries {
			if outcome.Kind == Canceled {
				// a late answer must not be read as the next transaction's
				e.quietUntil = req.Issued.Add(e.opts.timeout)
				if err := e.transport.Drain(); err != nil {
					e.logger.Debug("drain after cancel failed", "err", err)
				}
			}
			return outcome
		}

		req.Retries++
		e.stats.retries.Add(1)
		e.logger.Debug("retrying request",
			slog.Int("slave", int(req.SlaveID)),
			slog.Int("address", int(req.Address)),
			slog.Int("attempt", req.Retries+1),
			slog.String("reason", outcome.Kind.String()))
	}
}

// settle waits out the last abandoned attempt. Every frame that arrives before
// its deadline is discarded. It fails only when ctx is done.
func (e *Engine) settle(ctx context.Context) error {
	for {
		remaining := time.Until(e.quietUntil)
		if remaining <= 0 {
			return nil
		}
		raw, err := e.transport.Receive(ctx, remaining)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
			e.stats.discarded.Add(1)
			e.logger.Debug("discarding late answer to an abandoned request", "frame", hex.EncodeToString(raw))
		case !errors.Is(err, transport.ErrTimeout):
			// the line is broken, the send will report it
			e.quietUntil = time.Time{}
			return nil
		}
	}
}

// attempt sends the request once and waits for its answer. retry reports
// whether the failure leaves the slave's answer unknown.
func (e *Engine) attempt(ctx context.Context, req *PendingRequest) (Outcome, bool) {
	base := Outcome{SlaveID: req.SlaveID, Function: req.Function, Address: req.Address}
	fail := func(kind OutcomeKind, err error) Outcome {
		o := base
		o.Kind = kind
		o.Err = err
		return o
	}

	if err := e.transport.Send(ctx, req.adu); err != nil {
		if ctx.Err() != nil {
			return fail(Canceled, ctx.Err()), false
		}
		// no answer can follow a frame that never left
		return fail(Timeout, err), !errors.Is(err, transport.ErrClosed)
	}

	if req.SlaveID == modbus.BroadcastAddress {
		// broadcasts are never answered; leave the slaves time to act
		select {
		case <-ctx.Done():
			return fail(Canceled, ctx.Err()), false
		case <-time.After(e.opts.timeout):
		}
		base.Kind = Success
		return base, false
	}

	// The clock runs from the send, not from the last spurious frame.
	deadline := req.Issued.Add(e.opts.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fail(Timeout, transport.ErrTimeout), true
		}

		raw, err := e.transport.Receive(ctx, remaining)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return fail(Canceled, ctx.Err()), false
			case errors.Is(err, transport.ErrTimeout):
				return fail(Timeout, err), true
			case errors.Is(err, transport.ErrClosed):
				return fail(Timeout, err), false
			default:
				return fail(Timeout, err), true
			}
		}

		if bytes.Equal(raw, req.adu) && req.Function != modbus.FuncCodeWriteSingleRegister {
			// local echo of our own request on a two-wire line
			e.stats.discarded.Add(1)
			continue
		}

		frame, err := rtu.DecodeResponse(raw)
		if err != nil {
			switch {
			case errors.Is(err, rtu.ErrCRCMismatch):
				return fail(CrcMismatch, err), true
			case errors.Is(err, rtu.ErrTooShort):
				return fail(MalformedResponse, err), true
			case raw[0] != req.SlaveID:
				// valid CRC, so the address byte can be trusted
				e.stats.discarded.Add(1)
				continue
			default:
				return fail(MalformedResponse, err), false
			}
		}

		if err := req.verify(frame); err != nil {
			e.stats.discarded.Add(1)
			e.logger.Debug("discarding frame for another transaction", "err", err)
			continue
		}

		if code, ok := frame.Exception(); ok {
			o := base
			o.Kind = Exception
			o.Exception = code
			o.Err = code
			return o, false
		}

		o, err := e.extract(base, req, frame)
		if err != nil {
			return fail(MalformedResponse, err), false
		}
		return o, false
	}
}

// extract checks that frame answers req and pulls out the register values.
func (e *Engine) extract(o Outcome, req *PendingRequest, frame *rtu.Frame) (Outcome, error) {
	switch req.Function {
	case modbus.FuncCodeReadHoldingRegisters:
		values, err := frame.Registers()
		if err != nil {
			return o, err
		}
		if len(values) != int(req.Quantity) {
			return o, fmt.Errorf("got %d registers, requested %d", len(values), req.Quantity)
		}
		o.Values = values
		o.Value = values[0]
	case modbus.FuncCodeWriteSingleRegister:
		if !bytes.Equal(frame.Pdu.Data, req.adu[2:6]) {
			return o, fmt.Errorf("write echo % X does not match request % X", frame.Pdu.Data, req.adu[2:6])
		}
		o.Value = binary.BigEndian.Uint16(frame.Pdu.Data[2:4])
	case modbus.FuncCodeWriteMultipleRegisters:
		address, quantity, err := frame.AddressQuantity()
		if err != nil {
			return o, err
		}
		if address != req.Address || quantity != req.Quantity {
			return o, fmt.Errorf("acknowledged %d registers at %d, wrote %d at %d", quantity, address, req.Quantity, req.Address)
		}
	}
	o.Kind = Success
	return o, nil
}
