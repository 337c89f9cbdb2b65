// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tether

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/eventor"
)

// DefaultRetryInterval is the pause between failed connect attempts when
// Manager.RetryInterval is not set.
const DefaultRetryInterval = 10 * time.Second

// Connector establishes and releases the underlying connection of a Manager.
type Connector[H any] interface {
	// Connect dials the remote service and returns a handle that is fully
	// usable (any liveness probe has already succeeded). It must honor ctx.
	Connect(ctx context.Context) (H, error)

	// Close releases a handle returned by Connect.
	Close(ctx context.Context, h H) error
}

// Server is implemented by Connectors that actively work the connection for
// the lifetime of an epoch, such as a consumer pulling records. Serve runs
// until ctx is canceled or the connection is lost. When Serve returns on its
// own the epoch ends and the manager reconnects.
type Server[H any] interface {
	Serve(ctx context.Context, h H) error
}

// Manager keeps a connection of type H alive in a background goroutine.
//
// Start launches the lifecycle loop and returns immediately. The loop
// connects, retrying forever at RetryInterval, publishes the handle, waits
// until the connection is lost or torn down, closes it and starts over until
// Stop is called. WaitConnect and WaitStop are the readiness barriers.
//
// Callers borrow the live handle through Do for the duration of a single
// operation only.
//
// Thread Safety: All methods are safe for concurrent use.
type Manager[H any] struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Name identifies the manager in logs and events.
	Name string

	// RetryInterval is the pause between failed connect attempts.
	// Default: 10s.
	RetryInterval time.Duration

	// CloseTimeout bounds Connector.Close at the end of an epoch.
	// Zero or negative values mean no timeout.
	CloseTimeout time.Duration

	// Connector creates and releases connections. Required.
	Connector Connector[H]

	// IsConnectivityError reports whether an error returned from a Do block
	// means the connection is gone. Errors wrapping ErrConnectivity are
	// always treated as connectivity errors.
	// Optional.
	IsConnectivityError func(error) bool

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialLifecycleEventListeners are registered when Start() is first called.
	// Optional.
	InitialLifecycleEventListeners []func(*LifecycleEvent)

	// --- INTERNAL FIELDS ---

	listeners                    eventor.Eventor[func(*LifecycleEvent)]
	registerInitialListenersOnce sync.Once

	// mu protects everything below.
	mu     sync.RWMutex
	alive  bool
	state  State
	run    *run
	epoch  *epoch
	handle H
	live   bool
	epochs uint64
}

// run is one execution of the lifecycle loop, from Start to full drain.
// Its settings are fixed when the run is created.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	logger        kgo.Logger
	retryInterval time.Duration
}

func (r *run) done() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

// epoch carries the one-shot signals of a single connection.
type epoch struct {
	connected     chan struct{}
	connectedOnce sync.Once
	result        error

	disconnected   chan struct{}
	disconnectOnce sync.Once
}

func newEpoch() *epoch {
	return &epoch{
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
	}
}

// resolve records the outcome of connecting and releases WaitConnect callers.
// Only the first call has an effect.
func (e *epoch) resolve(err error) bool {
	resolved := false
	e.connectedOnce.Do(func() {
		e.result = err
		close(e.connected)
		resolved = true
	})
	return resolved
}

func (e *epoch) disconnect() {
	e.disconnectOnce.Do(func() {
		close(e.disconnected)
	})
}

// Start launches the lifecycle loop. It does not wait for a connection; use
// WaitConnect for that.
//
// Calling Start while a loop is running, including one that is still
// draining after Stop, does nothing.
//
// Returns an error only if the configuration is invalid.
func (m *Manager[H]) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validate(); err != nil {
		return err
	}

	m.registerInitialListenersOnce.Do(func() {
		for _, listener := range m.InitialLifecycleEventListeners {
			m.listeners.Add(listener)
		}
	})

	if m.run != nil && !m.run.done() {
		m.run.logger.Log(kgo.LogLevelWarn, "lifecycle loop already running",
			"name", m.Name, "state", m.state.String())
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		ctx:           ctx,
		cancel:        cancel,
		stopped:       make(chan struct{}),
		logger:        LoggerOrNop(m.Logger),
		retryInterval: m.RetryInterval,
	}
	if r.retryInterval == 0 {
		r.retryInterval = DefaultRetryInterval
	}
	ep := newEpoch()

	m.run = r
	m.epoch = ep
	m.alive = true
	m.state = Connecting

	r.logger.Log(kgo.LogLevelInfo, "lifecycle loop starting", "name", m.Name)
	go m.loop(r, ep)

	return nil
}

// Stop asks the lifecycle loop to release the connection and exit. It does
// not block; use WaitStop to wait for the drain to complete.
// Safe to call multiple times and before Start.
func (m *Manager[H]) Stop() {
	m.mu.Lock()
	m.alive = false
	r := m.run
	ep := m.epoch
	if r != nil && !r.done() {
		m.state = Stopping
	}
	m.mu.Unlock()

	if r == nil {
		return
	}

	r.logger.Log(kgo.LogLevelInfo, "stop requested", "name", m.Name)
	r.cancel()
	if ep != nil {
		ep.disconnect()
	}
}

// Restart tears down the live connection and reconnects without stopping
// the loop. It does nothing while no connection is live.
func (m *Manager[H]) Restart() {
	m.mu.RLock()
	r, ep, live := m.run, m.epoch, m.live
	m.mu.RUnlock()

	if !live {
		if r != nil {
			r.logger.Log(kgo.LogLevelDebug, "restart ignored, no live connection", "name", m.Name)
		}
		return
	}

	r.logger.Log(kgo.LogLevelWarn, "restart requested", "name", m.Name)
	ep.disconnect()
}

// restartEpoch is Restart restricted to a specific epoch, so a stale error
// cannot tear down a newer connection.
func (m *Manager[H]) restartEpoch(ep *epoch) {
	m.mu.RLock()
	r, current, live := m.run, m.epoch, m.live
	m.mu.RUnlock()

	if !live || current != ep {
		return
	}

	r.logger.Log(kgo.LogLevelWarn, "restart requested", "name", m.Name)
	ep.disconnect()
}

// WaitConnect blocks until a connection is live.
//
// Returns nil immediately if the manager was never started. Returns
// ErrStopped if the loop exited without connecting, or ctx.Err() if ctx is
// done first.
func (m *Manager[H]) WaitConnect(ctx context.Context) error {
	m.mu.RLock()
	ep := m.epoch
	m.mu.RUnlock()

	if ep == nil {
		return nil
	}

	select {
	case <-ep.connected:
		return ep.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitStop blocks until the lifecycle loop has exited and the connection has
// been closed. Returns nil immediately if the manager was never started.
func (m *Manager[H]) WaitStop(ctx context.Context) error {
	m.mu.RLock()
	r := m.run
	m.mu.RUnlock()

	if r == nil {
		return nil
	}

	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (m *Manager[H]) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Connected reports whether a connection is live right now.
func (m *Manager[H]) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live
}

// Epoch returns the number of connections established so far.
func (m *Manager[H]) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epochs
}

func (m *Manager[H]) validate() error {
	if m.Connector == nil {
		return errors.Join(ErrValidation, fmt.Errorf("connector is required"))
	}

	if m.RetryInterval < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("retry interval must not be negative"))
	}

	return nil
}

// loop is the only goroutine that mutates the handle.
func (m *Manager[H]) loop(r *run, ep *epoch) {
	defer m.finish(r)

	for {
		h, ok := m.connect(r, ep)
		if !ok {
			return
		}

		m.mu.Lock()
		if !m.alive {
			// Stop raced a successful connect.
			m.mu.Unlock()
			m.close(r, h)
			return
		}
		m.handle = h
		m.live = true
		m.epochs++
		m.state = Connected
		seq := m.epochs
		m.mu.Unlock()

		ep.resolve(nil)
		r.logger.Log(kgo.LogLevelInfo, "connected", "name", m.Name, "epoch", seq)
		m.dispatchEvent(&LifecycleEvent{State: Connected, Epoch: seq})

		began := time.Now()
		err := m.park(r, ep, h)

		m.mu.Lock()
		var zero H
		m.handle = zero
		m.live = false
		alive := m.alive
		var next *epoch
		if alive {
			next = newEpoch()
			m.epoch = next
			m.state = Reconnecting
		} else {
			m.state = Stopping
		}
		m.mu.Unlock()

		r.logger.Log(kgo.LogLevelWarn, "disconnected",
			"name", m.Name, "epoch", seq, "reconnect", alive)
		m.close(r, h)

		state := Reconnecting
		if !alive {
			state = Stopping
		}
		m.dispatchEvent(&LifecycleEvent{
			State:    state,
			Epoch:    seq,
			Error:    err,
			Duration: time.Since(began),
		})

		if !alive {
			return
		}
		ep = next
	}
}

// connect retries at the fixed interval until it succeeds or the run is
// stopped. There is no attempt limit.
func (m *Manager[H]) connect(r *run, ep *epoch) (H, bool) {
	var zero H
	ctx := r.ctx

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return zero, false
		}

		r.logger.Log(kgo.LogLevelInfo, "connecting", "name", m.Name, "attempt", attempt)

		began := time.Now()
		h, err := m.Connector.Connect(ctx)
		if err == nil {
			return h, true
		}

		if ctx.Err() != nil {
			return zero, false
		}

		r.logger.Log(kgo.LogLevelWarn, "connect failed",
			"name", m.Name, "attempt", attempt, "retry_in", r.retryInterval.String(), "error", err.Error())

		m.mu.RLock()
		state := m.state
		seq := m.epochs
		m.mu.RUnlock()
		m.dispatchEvent(&LifecycleEvent{
			State:    state,
			Epoch:    seq + 1,
			Attempt:  attempt,
			Error:    err,
			Duration: time.Since(began),
		})

		timer := time.NewTimer(r.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, false
		case <-timer.C:
		}
	}
}

// park waits until the epoch ends: Stop, Restart, or the Server returning.
func (m *Manager[H]) park(r *run, ep *epoch, h H) error {
	srv, ok := m.Connector.(Server[H])
	if !ok {
		select {
		case <-r.ctx.Done():
		case <-ep.disconnected:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx, h)
	}()

	select {
	case err := <-served:
		if err != nil {
			r.logger.Log(kgo.LogLevelWarn, "serve ended", "name", m.Name, "error", err.Error())
		}
		return err
	case <-ep.disconnected:
	case <-r.ctx.Done():
	}

	cancel()
	return <-served
}

func (m *Manager[H]) close(r *run, h H) {
	ctx := context.Background()
	if m.CloseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.CloseTimeout)
		defer cancel()
	}

	if err := m.Connector.Close(ctx, h); err != nil {
		r.logger.Log(kgo.LogLevelWarn, "close failed", "name", m.Name, "error", err.Error())
	}
}

// finish releases every waiter once the loop has exited.
func (m *Manager[H]) finish(r *run) {
	m.mu.Lock()
	m.state = Stopped
	m.alive = false
	ep := m.epoch
	if !ep.resolve(ErrStopped) {
		// The epoch had connected; later waiters must not see it as live.
		ep = newEpoch()
		ep.resolve(ErrStopped)
		m.epoch = ep
	}
	m.mu.Unlock()

	r.logger.Log(kgo.LogLevelWarn, "lifecycle loop stopped", "name", m.Name)
	m.dispatchEvent(&LifecycleEvent{State: Stopped})
	close(r.stopped)
}
