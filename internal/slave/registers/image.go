// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
)

// LoadImage seeds the map from a register image: a flat file of big-endian
// 16-bit values, register 0 first. The file is mapped read-only and never
// written back. Images larger than the map are truncated, smaller images leave
// the remaining registers untouched. It returns the number of registers loaded.
func (m *Map) LoadImage(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open register image: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Size() == 0 {
		// mmap of an empty file fails on most platforms
		return 0, nil
	}
	if fi.Size()%2 != 0 {
		return 0, fmt.Errorf("register image %s has odd size %d", path, fi.Size())
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("mmap failed: %w", err)
	}
	defer data.Unmap()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(data) / 2
	if n > len(m.values) {
		slog.Warn("Register image larger than map, truncating", "path", path, "image", n, "capacity", len(m.values))
		n = len(m.values)
	}
	for i := 0; i < n; i++ {
		m.values[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return n, nil
}
