// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
)

// OutcomeKind classifies how a transaction ended.
type OutcomeKind int

const (
	Success OutcomeKind = iota + 1
	Timeout
	CrcMismatch
	Exception
	MalformedResponse
	// Canceled means the caller abandoned the transaction.
	Canceled
	// InvalidRequest means the request could not be encoded; nothing was sent.
	InvalidRequest
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case CrcMismatch:
		return "crc mismatch"
	case Exception:
		return "exception"
	case MalformedResponse:
		return "malformed response"
	case Canceled:
		return "canceled"
	case InvalidRequest:
		return "invalid request"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// ErrMalformedResponse is wrapped by errors for responses that passed the CRC
// check but do not answer the request.
var ErrMalformedResponse = errors.New("master: malformed response")

// Outcome is the result of one transaction, produced once all attempts are
// spent or a terminal answer arrived.
type Outcome struct {
	Kind     OutcomeKind
	SlaveID  byte
	Function byte
	Address  uint16
	// Value is the first register read; Values holds all of them.
	Value     uint16
	Values    []uint16
	Exception modbus.ExceptionCode
	// Attempts counts request frames sent for this transaction.
	Attempts int
	// Err is the failure behind a non-success outcome.
	Err error
}

func (o Outcome) OK() bool {
	return o.Kind == Success
}

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("success(slave=%d, address=%d, value=%d)", o.SlaveID, o.Address, o.Value)
	case Exception:
		return fmt.Sprintf("exception(slave=%d, address=%d, %s)", o.SlaveID, o.Address, o.Exception)
	default:
		return fmt.Sprintf("%s(slave=%d, address=%d, attempts=%d)", o.Kind, o.SlaveID, o.Address, o.Attempts)
	}
}

// AsError converts a non-success outcome into an error that can be matched
// with errors.Is against transport.ErrTimeout, rtu.ErrCRCMismatch,
// ErrMalformedResponse, context errors or a modbus.ExceptionCode.
func (o Outcome) AsError() error {
	switch o.Kind {
	case Success:
		return nil
	case Exception:
		return &modbus.ExceptionError{SlaveID: o.SlaveID, FunctionCode: o.Function, ExceptionCode: o.Exception}
	case Timeout:
		if o.Err != nil && !errors.Is(o.Err, transport.ErrTimeout) {
			return fmt.Errorf("slave %d: %w after %d attempts: %w", o.SlaveID, transport.ErrTimeout, o.Attempts, o.Err)
		}
		return fmt.Errorf("slave %d: %w after %d attempts", o.SlaveID, transport.ErrTimeout, o.Attempts)
	case CrcMismatch:
		return fmt.Errorf("slave %d: %w after %d attempts", o.SlaveID, rtu.ErrCRCMismatch, o.Attempts)
	case MalformedResponse:
		if o.Err != nil {
			return fmt.Errorf("slave %d: %w: %w", o.SlaveID, ErrMalformedResponse, o.Err)
		}
		return fmt.Errorf("slave %d: %w", o.SlaveID, ErrMalformedResponse)
	default:
		if o.Err != nil {
			return o.Err
		}
		return fmt.Errorf("master: %s", o.Kind)
	}
}
