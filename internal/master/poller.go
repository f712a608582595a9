// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Poller reads a fixed list of registers from one slave, round after round.
type Poller struct {
	engine    *Engine
	slaveID   byte
	addresses []uint16
	interval  time.Duration
	logger    *slog.Logger

	// OnOutcome, if set, receives every outcome after it has been logged.
	OnOutcome func(Outcome)
}

// NewPoller creates a poller that waits interval between two requests.
func NewPoller(engine *Engine, slaveID byte, addresses []uint16, interval time.Duration) (*Poller, error) {
	if len(addresses) == 0 {
		return nil, errors.New("master: no registers to poll")
	}
	if interval < 0 {
		interval = 0
	}
	return &Poller{
		engine:    engine,
		slaveID:   slaveID,
		addresses: append([]uint16(nil), addresses...),
		interval:  interval,
		logger:    engine.logger,
	}, nil
}

// Run polls until ctx is cancelled. Failed reads are logged and polling
// carries on with the next register.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Polling slave", "slave", p.slaveID, "registers", p.addresses, "interval", p.interval)

	for i := 0; ; i = (i + 1) % len(p.addresses) {
		o := p.engine.Request(ctx, p.slaveID, p.addresses[i])
		if o.Kind == Canceled || ctx.Err() != nil {
			return nil
		}
		p.log(o)
		if p.OnOutcome != nil {
			p.OnOutcome(o)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) log(o Outcome) {
	attrs := []any{"slave", o.SlaveID, "address", o.Address, "attempts", o.Attempts}
	switch o.Kind {
	case Success:
		p.logger.Info("Register read", append(attrs, "value", o.Value)...)
	case Exception:
		p.logger.Warn("Slave answered with exception", append(attrs, "exception", o.Exception.String())...)
	default:
		p.logger.Warn("Register read failed", append(attrs, "outcome", o.Kind.String(), "err", o.AsError())...)
	}
}
