// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize covers address, function code and CRC.
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// ReadRequestSize is the fixed size of a 0x03 request.
	ReadRequestSize = 8
)
