// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/ffutop/modbus-rtu/internal/slave/registers"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
	"github.com/ffutop/modbus-rtu/transport/local"
)

func TestServerServe(t *testing.T) {
	master, line := local.Pipe()
	e := newTestEngine(t)
	s := NewServer(e, line)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	req, _ := rtu.EncodeReadRequest(1, 1, 1)
	if err := master.Send(ctx, req); err != nil {
		t.Fatal(err)
	}
	resp, err := master.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("no response: %v", err)
	}
	want := []byte{0x01, 0x03, 0x02, 0x00, 0x18, 0xB8, 0x4E}
	if !bytes.Equal(resp, want) {
		t.Errorf("Frame mismatch.\nWant: % X\nGot:  % X", want, resp)
	}

	// A request for another slave gets no answer.
	other, _ := rtu.EncodeReadRequest(9, 1, 1)
	_ = master.Send(ctx, other)
	if _, err := master.Receive(ctx, 50*time.Millisecond); !errors.Is(err, transport.ErrTimeout) {
		t.Errorf("foreign request answered: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestServerStopsOnClosedTransport(t *testing.T) {
	_, line := local.Pipe()
	s := NewServer(newTestEngine(t), line)
	line.Close()

	if err := s.Serve(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Serve() = %v, want ErrClosed", err)
	}
}

// engineTransporter lets an independent master implementation talk to the
// engine without a serial line.
type engineTransporter struct {
	engine *Engine
}

func (et engineTransporter) Send(aduRequest []byte) ([]byte, error) {
	resp := et.engine.Process(aduRequest)
	if resp == nil {
		return nil, errors.New("no response")
	}
	return resp, nil
}

func TestInteropGoburrowClient(t *testing.T) {
	e, err := NewEngine(17, registers.NewWithValues(12, 24, 36, 48, 60))
	if err != nil {
		t.Fatal(err)
	}
	handler := modbus.NewRTUClientHandler("")
	handler.SlaveId = 17
	client := modbus.NewClient2(handler, engineTransporter{e})

	results, err := client.ReadHoldingRegisters(1, 3)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters failed: %v", err)
	}
	if !bytes.Equal(results, []byte{0x00, 0x18, 0x00, 0x24, 0x00, 0x30}) {
		t.Errorf("results = % X", results)
	}

	if _, err := client.WriteSingleRegister(0, 0x1234); err != nil {
		t.Fatalf("WriteSingleRegister failed: %v", err)
	}
	values := make([]byte, 4)
	binary.BigEndian.PutUint16(values[0:], 0xAAAA)
	binary.BigEndian.PutUint16(values[2:], 0xBBBB)
	if _, err := client.WriteMultipleRegisters(3, 2, values); err != nil {
		t.Fatalf("WriteMultipleRegisters failed: %v", err)
	}
	want := []uint16{0x1234, 24, 36, 0xAAAA, 0xBBBB}
	for i, v := range e.Registers().Snapshot() {
		if v != want[i] {
			t.Errorf("register %d = %04X, want %04X", i, v, want[i])
		}
	}

	_, err = client.ReadHoldingRegisters(5, 1)
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("error = %v, want *modbus.ModbusError", err)
	}
	if mbErr.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("exception code = %d, want %d", mbErr.ExceptionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
}
