// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "fmt"

// DecodeErrorKind classifies why a frame was rejected.
type DecodeErrorKind int

const (
	TooShort DecodeErrorKind = iota + 1
	CRCMismatch
	LengthMismatch
)

func (k DecodeErrorKind) String() string {
	switch k {
	case TooShort:
		return "too short"
	case CRCMismatch:
		return "crc mismatch"
	case LengthMismatch:
		return "length mismatch"
	default:
		return "unknown"
	}
}

// DecodeError is returned by the decoders. Frames that fail decoding must not be
// acted upon.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return "modbus: frame " + e.Kind.String()
	}
	return fmt.Sprintf("modbus: frame %s: %s", e.Kind, e.Detail)
}

// Is matches any DecodeError of the same kind, so errors.Is(err, ErrCRCMismatch)
// works regardless of the detail message.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrTooShort       = &DecodeError{Kind: TooShort}
	ErrCRCMismatch    = &DecodeError{Kind: CRCMismatch}
	ErrLengthMismatch = &DecodeError{Kind: LengthMismatch}
)

func decodeError(kind DecodeErrorKind, format string, args ...interface{}) error {
	return &DecodeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
