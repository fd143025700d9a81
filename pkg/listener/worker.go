// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package listener runs the queue workers that consume the integration bus
// and hand every message to a handler.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/abcxyz/pkg/logging"
)

var (
	consumeRetryBase = 1 * time.Second
	consumeRetryCap  = 1 * time.Minute
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// WorkerConfig names the queue a worker consumes.
type WorkerConfig struct {
	QueueName   string
	DisplayName string
}

// Validate checks the worker configuration.
func (c WorkerConfig) Validate() error {
	var merr error
	if strings.TrimSpace(c.QueueName) == "" {
		merr = errors.Join(merr, errors.New("queue name is required"))
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		merr = errors.Join(merr, errors.New("display name is required"))
	}
	return merr
}

// MessageHandler processes one bus message. It may be called concurrently.
type MessageHandler interface {
	HandleMessage(ctx context.Context, body []byte, messageID string) error
}

// HandlerFunc adapts a function to a MessageHandler.
type HandlerFunc func(ctx context.Context, body []byte, messageID string) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, body []byte, messageID string) error {
	return f(ctx, body, messageID)
}

// DeliverFunc receives one message from Channel.Consume. The message has
// already been acknowledged.
type DeliverFunc func(ctx context.Context, body []byte, messageID string)

// Channel is a worker's connection to the bus.
type Channel interface {
	// EnsureQueue creates the queue if it does not exist yet.
	EnsureQueue(ctx context.Context, queue string) error

	// Consume acknowledges and delivers messages until ctx is done or the
	// subscription fails. Deliveries may run concurrently.
	Consume(ctx context.Context, queue string, fn DeliverFunc) error

	Close() error
}

// Dialer opens a Channel.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context) (Channel, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// Worker consumes one queue. Messages are acknowledged on receipt, so a
// failed delivery is logged and not retried.
type Worker struct {
	cfg     WorkerConfig
	dialer  Dialer
	handler MessageHandler

	state atomic.Int32

	// mu serializes lifecycle transitions.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	chMu sync.Mutex
	ch   Channel
}

// NewWorker creates a stopped worker.
func NewWorker(cfg WorkerConfig, dialer Dialer, handler MessageHandler) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker configuration: %w", err)
	}
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	return &Worker{cfg: cfg, dialer: dialer, handler: handler}, nil
}

// Config returns the worker configuration.
func (w *Worker) Config() WorkerConfig {
	return w.cfg
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Worker) logger(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx).With("worker", w.cfg.DisplayName, "queue", w.cfg.QueueName)
}

// channel returns the cached channel, dialing it on first use. Concurrent
// callers wait on the same dial. A failed dial is not cached.
func (w *Worker) channel(ctx context.Context) (Channel, error) {
	w.chMu.Lock()
	defer w.chMu.Unlock()

	if w.ch != nil {
		return w.ch, nil
	}
	ch, err := w.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	w.ch = ch
	return ch, nil
}

// Start ensures the queue exists and starts consuming it. Starting a worker
// that is already running is a no-op. When start fails the worker stays
// stopped. A worker whose previous consume loop has not exited yet refuses to
// start.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.State() {
	case StateStopped:
	case StateStopping:
		if !w.drained() {
			return fmt.Errorf("worker %s is still stopping", w.cfg.DisplayName)
		}
		w.cancel, w.done = nil, nil
		w.setState(StateStopped)
	default:
		return nil
	}
	w.setState(StateStarting)
	logger := w.logger(ctx)

	ch, err := w.channel(ctx)
	if err != nil {
		w.setState(StateStopped)
		return fmt.Errorf("worker %s failed to open channel: %w", w.cfg.DisplayName, err)
	}
	if err := ch.EnsureQueue(ctx, w.cfg.QueueName); err != nil {
		w.closeChannel(ctx, logger)
		w.setState(StateStopped)
		return fmt.Errorf("worker %s failed to ensure queue %s: %w", w.cfg.DisplayName, w.cfg.QueueName, err)
	}

	runCtx, cancel := context.WithCancel(logging.WithLogger(context.WithoutCancel(ctx), logger))
	w.cancel = cancel
	w.done = make(chan struct{})
	w.setState(StateRunning)

	go w.consume(runCtx, ch, w.done)

	logger.InfoContext(ctx, "worker started")
	return nil
}

// consume keeps a subscription open until ctx is done. A subscription that
// fails is re-established with capped exponential backoff.
func (w *Worker) consume(ctx context.Context, ch Channel, done chan<- struct{}) {
	defer close(done)
	logger := logging.FromContext(ctx)

	backoff := retry.NewExponential(consumeRetryBase)
	backoff = retry.WithCappedDuration(consumeRetryCap, backoff)
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := ch.Consume(ctx, w.cfg.QueueName, w.deliver)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("subscription ended")
		}
		logger.WarnContext(ctx, "consume failed, resubscribing", "error", err)
		return retry.RetryableError(err)
	})
}

func (w *Worker) deliver(ctx context.Context, body []byte, messageID string) {
	if err := w.handler.HandleMessage(ctx, body, messageID); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to handle message",
			"message_id", messageID,
			"error", err)
	}
}

// Stop cancels consumption and closes the channel. Stopping a stopped worker
// only releases a channel left open by a failed start. Stop waits for the
// consume loop and the channel close no longer than ctx allows; close errors
// are logged and dropped. When the consume loop outlives ctx the worker stays
// in StateStopping and a later Stop waits for it again.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	logger := w.logger(ctx)
	if w.State() == StateStopped {
		w.closeChannel(ctx, logger)
		return nil
	}
	w.setState(StateStopping)

	var stopErr error
	if w.cancel != nil {
		w.cancel()
		select {
		case <-w.done:
			w.cancel, w.done = nil, nil
		case <-ctx.Done():
			stopErr = fmt.Errorf("worker %s did not drain before shutdown: %w", w.cfg.DisplayName, ctx.Err())
		}
	}

	w.closeChannel(ctx, logger)
	if stopErr != nil {
		logger.WarnContext(ctx, "worker still draining", "error", stopErr)
		return stopErr
	}
	w.setState(StateStopped)

	logger.InfoContext(ctx, "worker stopped")
	return nil
}

// drained reports whether the last consume loop has exited.
func (w *Worker) drained() bool {
	if w.done == nil {
		return true
	}
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *Worker) closeChannel(ctx context.Context, logger *slog.Logger) {
	w.chMu.Lock()
	ch := w.ch
	w.ch = nil
	w.chMu.Unlock()

	if ch == nil {
		return
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- ch.Close()
	}()
	select {
	case err := <-errCh:
		if err != nil {
			logger.WarnContext(ctx, "failed to close channel", "error", err)
		}
	case <-ctx.Done():
		logger.WarnContext(ctx, "gave up waiting for channel close", "error", ctx.Err())
	}
}
