// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import "sync/atomic"

// Counter is a simple atomic counter.
type Counter struct {
	value int64
}

func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// counters collects per-engine statistics.
type counters struct {
	requests   Counter
	frames     Counter // request frames sent, retries included
	retries    Counter
	successes  Counter
	timeouts   Counter
	crcErrors  Counter
	malformed  Counter
	exceptions Counter
	discarded  Counter // cross-talk and echoes
	canceled   Counter
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Requests   int64
	Frames     int64
	Retries    int64
	Successes  int64
	Timeouts   int64
	CRCErrors  int64
	Malformed  int64
	Exceptions int64
	Discarded  int64
	Canceled   int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Requests:   c.requests.Value(),
		Frames:     c.frames.Value(),
		Retries:    c.retries.Value(),
		Successes:  c.successes.Value(),
		Timeouts:   c.timeouts.Value(),
		CRCErrors:  c.crcErrors.Value(),
		Malformed:  c.malformed.Value(),
		Exceptions: c.exceptions.Value(),
		Discarded:  c.discarded.Value(),
		Canceled:   c.canceled.Value(),
	}
}

// record counts the final outcome of a transaction.
func (c *counters) record(o Outcome) {
	switch o.Kind {
	case Success:
		c.successes.Add(1)
	case Timeout:
		c.timeouts.Add(1)
	case CrcMismatch:
		c.crcErrors.Add(1)
	case MalformedResponse:
		c.malformed.Add(1)
	case Exception:
		c.exceptions.Add(1)
	case Canceled:
		c.canceled.Add(1)
	}
}
