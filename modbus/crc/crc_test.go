// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"Empty", []byte{}, 0xFFFF},
		{"ReadRegister0", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 0x0A84},
		{"ReadRegister1", []byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x01}, 0xCAD5},
		{"ResponseValue24", []byte{0x01, 0x03, 0x02, 0x00, 0x18}, 0x4EB8},
		{"Exception", []byte{0x01, 0x83, 0x02}, 0xF1C0},
		{"TwoBytes", []byte{0x02, 0x07}, 0x1241},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(% X) = %04X, want %04X", tt.data, got, tt.want)
			}
		})
	}
}

func TestAppendWireOrder(t *testing.T) {
	got := Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("Append mismatch.\nWant: % X\nGot:  % X", want, got)
	}
}

func TestVerifyShortInput(t *testing.T) {
	for _, b := range [][]byte{nil, {}, {0xFF}} {
		if Verify(b) {
			t.Errorf("Verify(% X) = true, want false", b)
		}
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x01, 0x03, 0x00, 0x01, 0x00, 0x01},
		{0x11, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02},
		bytes.Repeat([]byte{0xA5, 0x5A}, 100),
	}
	for i := 0; i < 64; i++ {
		b := make([]byte, i)
		for j := range b {
			b[j] = byte(i*31 + j*7)
		}
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		framed := Append(append([]byte(nil), in...))
		if !Verify(framed) {
			t.Fatalf("Verify(Append(% X)) = false", in)
		}
	}
}

// Every single-bit flip anywhere in the framed bytes must be detected.
func TestVerifyDetectsEverySingleBitFlip(t *testing.T) {
	inputs := [][]byte{
		{0x01, 0x03, 0x00, 0x01, 0x00, 0x01},
		{0x01, 0x03, 0x02, 0x00, 0x18},
		{0x01, 0x83, 0x02},
		{0x00},
		bytes.Repeat([]byte{0xFF}, 252),
	}
	for _, in := range inputs {
		framed := Append(append([]byte(nil), in...))
		for i := range framed {
			for bit := 0; bit < 8; bit++ {
				corrupted := append([]byte(nil), framed...)
				corrupted[i] ^= 1 << bit
				if Verify(corrupted) {
					t.Fatalf("flip of byte %d bit %d in % X went undetected", i, bit, framed)
				}
			}
		}
	}
}
