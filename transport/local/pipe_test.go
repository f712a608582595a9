// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ffutop/modbus-rtu/transport"
)

func TestPipe(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	frame := []byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x01, 0xD5, 0xCA}
	if err := a.Send(ctx, frame); err != nil {
		t.Fatal(err)
	}
	frame[0] = 0xFF

	got, err := b.Receive(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0x01 {
		t.Error("received frame aliases the sent buffer")
	}
	if _, err := a.Receive(ctx, 10*time.Millisecond); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("sender received its own frame: %v", err)
	}
}

func TestPipeTamper(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	drops := 2
	a.SetTamper(func(frame []byte) []byte {
		if drops > 0 {
			drops--
			return nil
		}
		frame[len(frame)-1] ^= 0xFF
		return frame
	})
	for i := 0; i < 3; i++ {
		if err := a.Send(ctx, []byte{1, 2, 3, 4}); err != nil {
			t.Fatal(err)
		}
	}
	if a.Sent() != 3 {
		t.Errorf("Sent() = %d, want 3", a.Sent())
	}
	got, err := b.Receive(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 0xFB}) {
		t.Errorf("got % X", got)
	}
	if _, err := b.Receive(ctx, 10*time.Millisecond); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("dropped frames arrived: %v", err)
	}
}

func TestPipeDrainAndClose(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	_ = a.Send(ctx, []byte{1})
	_ = a.Send(ctx, []byte{2})
	if err := b.Drain(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Receive(ctx, 10*time.Millisecond); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("frames left after Drain: %v", err)
	}

	b.Close()
	b.Close()
	if _, err := b.Receive(ctx, time.Second); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Receive after Close: %v", err)
	}
	if err := b.Send(ctx, []byte{1}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Send after Close: %v", err)
	}
}

func TestPipeReceiveCanceled(t *testing.T) {
	_, b := Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Receive(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
