// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ffutop/modbus-rtu/modbus/rtu"
)

// scriptedReader returns one scripted chunk per call. A nil chunk is a
// silence interval; an exhausted script is silence forever.
type scriptedReader struct {
	chunks [][]byte
	err    error
	calls  int
}

func (r *scriptedReader) ReadChunk(p []byte) (int, error) {
	r.calls++
	if r.err != nil {
		return 0, r.err
	}
	if len(r.chunks) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	return copy(p, c), nil
}

func TestReadFrame(t *testing.T) {
	resp, _ := rtu.EncodeReadResponse(1, []uint16{24})
	garbage := []byte{0x01, 0x03, 0x02}

	tests := []struct {
		name   string
		chunks [][]byte
		want   []byte
	}{
		{"SingleChunk", [][]byte{resp}, resp},
		{"SplitChunks", [][]byte{resp[:2], resp[2:5], resp[5:]}, resp},
		{"LeadingSilence", [][]byte{nil, nil, resp}, resp},
		{"CompleteBeforeSilence", [][]byte{resp, {0xAA}}, resp},
		{"PartialThenSilence", [][]byte{garbage, nil, resp}, garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &scriptedReader{chunks: tt.chunks}
			got, err := ReadFrame(context.Background(), r, time.Second)
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ReadFrame() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestReadFrameTimeout(t *testing.T) {
	r := &scriptedReader{}
	start := time.Now()
	_, err := ReadFrame(context.Background(), r, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, before the deadline", elapsed)
	}
}

func TestReadFrameCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadFrame(ctx, &scriptedReader{}, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestReadFrameIOError(t *testing.T) {
	_, err := ReadFrame(context.Background(), &scriptedReader{err: errors.New("unplugged")}, time.Second)
	if !errors.Is(err, ErrIO) {
		t.Errorf("error = %v, want ErrIO", err)
	}
}

func TestReadFrameCapsAtMaxSize(t *testing.T) {
	noise := bytes.Repeat([]byte{0xFF}, 300)
	got, err := ReadFrame(context.Background(), &scriptedReader{chunks: [][]byte{noise}}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != rtu.MaxSize {
		t.Errorf("len = %d, want %d", len(got), rtu.MaxSize)
	}
}

func TestDrain(t *testing.T) {
	r := &scriptedReader{chunks: [][]byte{{1, 2, 3}, {4}, nil, {5}}}
	n, err := Drain(r)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("dropped %d bytes, want 4", n)
	}
	if len(r.chunks) != 1 {
		t.Errorf("Drain read past the silence")
	}
}
