// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

func TestEncodeWireFormat(t *testing.T) {
	tests := []struct {
		name   string
		encode func() ([]byte, error)
		want   []byte
	}{
		{
			name:   "ReadRequestRegister0",
			encode: func() ([]byte, error) { return EncodeReadRequest(1, 0, 1) },
			want:   []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A},
		},
		{
			name:   "ReadRequestRegister1",
			encode: func() ([]byte, error) { return EncodeReadRequest(1, 1, 1) },
			want:   []byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x01, 0xD5, 0xCA},
		},
		{
			name:   "ReadResponseValue24",
			encode: func() ([]byte, error) { return EncodeReadResponse(1, []uint16{24}) },
			want:   []byte{0x01, 0x03, 0x02, 0x00, 0x18, 0xB8, 0x4E},
		},
		{
			name:   "ReadResponseTwoValues",
			encode: func() ([]byte, error) { return EncodeReadResponse(1, []uint16{24, 36}) },
			want:   []byte{0x01, 0x03, 0x04, 0x00, 0x18, 0x00, 0x24, 0x7A, 0x2F},
		},
		{
			name: "IllegalDataAddress",
			encode: func() ([]byte, error) {
				return EncodeException(1, modbus.FuncCodeReadHoldingRegisters, modbus.ExceptionCodeIllegalDataAddress)
			},
			want: []byte{0x01, 0x83, 0x02, 0xC0, 0xF1},
		},
		{
			name:   "WriteMultipleAck",
			encode: func() ([]byte, error) { return EncodeWriteMultipleResponse(1, 0, 3) },
			want:   []byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x03, 0x80, 0x08},
		},
		{
			name:   "WriteMultipleRequest",
			encode: func() ([]byte, error) { return EncodeWriteMultipleRequest(1, 0, []uint16{1, 2, 3}) },
			want:   []byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x03, 0x06, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x3A, 0x81},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.encode()
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Frame mismatch.\nWant: % X\nGot:  % X", tt.want, got)
			}
		})
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	if _, err := EncodeReadRequest(248, 0, 1); !errors.Is(err, modbus.ErrInvalidAddress) {
		t.Errorf("reserved address: got %v, want ErrInvalidAddress", err)
	}
	if _, err := EncodeReadRequest(1, 0, 0); !errors.Is(err, modbus.ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := EncodeReadRequest(1, 0, 126); !errors.Is(err, modbus.ErrInvalidQuantity) {
		t.Errorf("quantity 126: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := EncodeReadResponse(1, nil); !errors.Is(err, modbus.ErrInvalidQuantity) {
		t.Errorf("empty response: got %v, want ErrInvalidQuantity", err)
	}
	if _, err := EncodeWriteMultipleRequest(1, 0, make([]uint16, 124)); !errors.Is(err, modbus.ErrInvalidQuantity) {
		t.Errorf("124 writes: got %v, want ErrInvalidQuantity", err)
	}
}

func TestFrameEncodeTooLong(t *testing.T) {
	f := &Frame{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: make([]byte, 253)}}
	if _, err := f.Encode(); err == nil {
		t.Error("expected error for 257 byte frame")
	}
}

func TestDecodeTooShort(t *testing.T) {
	valid, _ := EncodeReadRequest(1, 1, 1)
	for n := 0; n < MinSize; n++ {
		_, err := Decode(valid[:n])
		if !errors.Is(err, ErrTooShort) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrTooShort", n, err)
		}
	}
}

// Every single-byte corruption of a valid frame must be rejected before any
// byte is interpreted.
func TestDecodeRejectsSingleByteCorruption(t *testing.T) {
	frames := [][]byte{}
	for _, enc := range []func() ([]byte, error){
		func() ([]byte, error) { return EncodeReadRequest(1, 1, 1) },
		func() ([]byte, error) { return EncodeReadResponse(1, []uint16{24}) },
		func() ([]byte, error) { return EncodeException(1, 0x03, 0x01) },
	} {
		f, err := enc()
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, f)
	}

	for _, frame := range frames {
		for i := range frame {
			for delta := 1; delta < 256; delta++ {
				corrupted := append([]byte(nil), frame...)
				corrupted[i] ^= byte(delta)
				if _, err := Decode(corrupted); !errors.Is(err, ErrCRCMismatch) {
					t.Fatalf("corrupting byte %d of % X with %02X: error = %v, want ErrCRCMismatch", i, frame, delta, err)
				}
			}
		}
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	raw, _ := EncodeReadResponse(1, []uint16{24})
	f, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	raw[3] = 0xFF
	if f.Pdu.Data[1] != 0x00 {
		t.Error("decoded payload aliases the input buffer")
	}
	if f.CRC != 0x4EB8 {
		t.Errorf("CRC = %04X, want 4EB8", f.CRC)
	}
}

func TestDecodeRequest(t *testing.T) {
	raw, _ := EncodeReadRequest(7, 0x1234, 2)
	f, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	addr, qty, err := f.AddressQuantity()
	if err != nil || f.SlaveID != 7 || addr != 0x1234 || qty != 2 {
		t.Errorf("got slave %d addr %04X qty %d err %v", f.SlaveID, addr, qty, err)
	}

	// A 0x03 request with a 5 byte body
	bad := crc.Append([]byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x01, 0x00})
	if _, err := DecodeRequest(bad); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("long read request: error = %v, want ErrLengthMismatch", err)
	}

	// Byte count says 4, payload has 2
	bad = crc.Append([]byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x02, 0x04, 0x00, 0x01})
	if _, err := DecodeRequest(bad); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("short write multiple: error = %v, want ErrLengthMismatch", err)
	}

	// Unknown functions pass through
	unknown := crc.Append([]byte{0x01, 0x2B, 0x0E})
	if _, err := DecodeRequest(unknown); err != nil {
		t.Errorf("unknown function: unexpected error %v", err)
	}
}

func TestDecodeResponse(t *testing.T) {
	raw, _ := EncodeReadResponse(1, []uint16{24, 36})
	f, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	values, err := f.Registers()
	if err != nil || len(values) != 2 || values[0] != 24 || values[1] != 36 {
		t.Errorf("Registers() = %v, %v", values, err)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"ByteCountTooLarge", crc.Append([]byte{0x01, 0x03, 0x04, 0x00, 0x18})},
		{"ByteCountTooSmall", crc.Append([]byte{0x01, 0x03, 0x01, 0x00, 0x18})},
		{"ByteCountOdd", crc.Append([]byte{0x01, 0x03, 0x03, 0x00, 0x18, 0x00})},
		{"MissingByteCount", crc.Append([]byte{0x01, 0x03})},
		{"LongException", crc.Append([]byte{0x01, 0x83, 0x02, 0x00})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeResponse(tt.raw); !errors.Is(err, ErrLengthMismatch) {
				t.Errorf("error = %v, want ErrLengthMismatch", err)
			}
		})
	}
}

func TestFrameException(t *testing.T) {
	raw, _ := EncodeException(1, 0x03, modbus.ExceptionCodeIllegalDataAddress)
	f, err := DecodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	code, ok := f.Exception()
	if !ok || code != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("Exception() = %v, %v", code, ok)
	}

	req := &Frame{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}
	if err := req.Verify(f); err != nil {
		t.Errorf("exception should answer its request: %v", err)
	}
	if err := req.Verify(&Frame{SlaveID: 2, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03}}); err == nil {
		t.Error("expected slave id mismatch")
	}
	if err := req.Verify(&Frame{SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x06}}); err == nil {
		t.Error("expected function mismatch")
	}
}

func TestDecodeErrorIs(t *testing.T) {
	err := decodeError(CRCMismatch, "detail")
	if !errors.Is(err, ErrCRCMismatch) || errors.Is(err, ErrTooShort) {
		t.Errorf("errors.Is mismatch for %v", err)
	}
	if err.Error() != "modbus: frame crc mismatch: detail" {
		t.Errorf("Error() = %q", err.Error())
	}
}
