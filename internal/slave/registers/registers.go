// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"errors"
	"fmt"
	"sync"
)

// MaxCapacity covers the full 16-bit address space.
const MaxCapacity = 65536

var ErrOutOfRange = errors.New("registers: address out of range")

// Map holds a fixed number of 16-bit holding registers, addressed from 0.
// It is safe for concurrent use.
type Map struct {
	mu     sync.RWMutex
	values []uint16
}

// New creates a map of capacity registers initialized to zero. capacity is
// clamped to [0, MaxCapacity].
func New(capacity int) *Map {
	if capacity < 0 {
		capacity = 0
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Map{values: make([]uint16, capacity)}
}

// NewWithValues creates a map whose capacity equals len(values).
func NewWithValues(values ...uint16) *Map {
	m := New(len(values))
	copy(m.values, values)
	return m
}

func (m *Map) Capacity() int {
	return len(m.values)
}

// Read returns the value stored at address.
func (m *Map) Read(address uint16) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if int(address) >= len(m.values) {
		return 0, fmt.Errorf("%w: %d >= capacity %d", ErrOutOfRange, address, len(m.values))
	}
	return m.values[address], nil
}

// Write stores value at address.
func (m *Map) Write(address, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(address) >= len(m.values) {
		return fmt.Errorf("%w: %d >= capacity %d", ErrOutOfRange, address, len(m.values))
	}
	m.values[address] = value
	return nil
}

// ReadRange returns count registers starting at start. Either all of them are
// returned or none.
func (m *Map) ReadRange(start, count uint16) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.validateRange(start, int(count)); err != nil {
		return nil, err
	}
	result := make([]uint16, count)
	copy(result, m.values[start:int(start)+int(count)])
	return result, nil
}

// WriteRange stores values starting at start. Nothing is written unless the
// whole range fits.
func (m *Map) WriteRange(start uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateRange(start, len(values)); err != nil {
		return err
	}
	copy(m.values[start:], values)
	return nil
}

// Snapshot returns a copy of all registers.
func (m *Map) Snapshot() []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]uint16(nil), m.values...)
}

// validateRange checks [start, start+count). Caller must hold the mutex.
func (m *Map) validateRange(start uint16, count int) error {
	// address is 0-based; int arithmetic avoids uint16 wrap-around.
	if int(start)+count > len(m.values) {
		return fmt.Errorf("%w: [%d, %d) exceeds capacity %d", ErrOutOfRange, start, int(start)+count, len(m.values))
	}
	return nil
}
