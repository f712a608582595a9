// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"log/slog"
	"time"
)

const (
	// DefaultTimeout is the response margin granted to a slave per attempt.
	DefaultTimeout = 500 * time.Millisecond
	// DefaultMaxRetries is the number of resends after the first attempt.
	DefaultMaxRetries = 2
)

// Option is a functional option for configuring the engine.
type Option func(*engineOptions)

type engineOptions struct {
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	onState    func(from, to State)
}

func defaultOptions() *engineOptions {
	return &engineOptions{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
}

// WithTimeout sets how long each attempt waits for a response, measured from
// the moment the request was sent.
func WithTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a request is resent after the first
// attempt failed without an answer.
func WithMaxRetries(n int) Option {
	return func(o *engineOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(o *engineOptions) {
		o.onState = fn
	}
}
