// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/modbus-rtu/modbus/rtu"
)

var (
	// ErrTimeout is returned by Receive when no byte arrived before the deadline.
	ErrTimeout = errors.New("transport: timeout")
	// ErrIO wraps failures of the underlying line.
	ErrIO = errors.New("transport: i/o failure")
	// ErrClosed is returned once the transport has been closed.
	ErrClosed = errors.New("transport: closed")
)

// Transport moves whole RTU frames over a half-duplex line. It is used by one
// engine at a time.
type Transport interface {
	// Send writes one frame. Errors wrap ErrIO.
	Send(ctx context.Context, adu []byte) error
	// Receive returns the next silence-delimited frame, or ErrTimeout when
	// nothing arrived within timeout.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Drain discards whatever is pending on the line.
	Drain() error
	Close() error
}

// ChunkReader reads raw bytes from a line. ReadChunk waits at most one frame
// silence; (0, nil) means the line stayed quiet for that long.
type ChunkReader interface {
	ReadChunk(p []byte) (int, error)
}

// ReadFrame assembles one frame from r. It waits up to timeout for the first
// byte, then collects bytes until either the line falls silent or buf holds a
// complete frame with a valid CRC.
func ReadFrame(ctx context.Context, r ChunkReader, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, rtu.MaxSize)
	chunk := make([]byte, rtu.MaxSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(buf) == 0 && !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		n, err := r.ReadChunk(chunk[:rtu.MaxSize-len(buf)])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		if n == 0 {
			if len(buf) > 0 {
				// 3.5 character silence ends the frame
				return buf, nil
			}
			continue
		}
		buf = append(buf, chunk[:n]...)
		if rtu.Complete(buf) || len(buf) >= rtu.MaxSize {
			return buf, nil
		}
	}
}

// maxDrainChunks bounds Drain on a line that never goes quiet.
const maxDrainChunks = 64

// Drain reads and drops bytes from r until one silence interval passes.
// It returns the number of bytes dropped.
func Drain(r ChunkReader) (int, error) {
	chunk := make([]byte, rtu.MaxSize)
	dropped := 0
	for i := 0; i < maxDrainChunks; i++ {
		n, err := r.ReadChunk(chunk)
		if err != nil {
			return dropped, fmt.Errorf("%w: %v", ErrIO, err)
		}
		if n == 0 {
			return dropped, nil
		}
		dropped += n
	}
	return dropped, nil
}
