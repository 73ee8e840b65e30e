// Package debounce coalesces bursts of inbound messages from the same sender
// into a single unit of work.
package debounce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// DefaultDelay is the quiet window used when none is configured.
const DefaultDelay = 3 * time.Second

var (
	// ErrClosed is returned by Add after Shutdown has been called.
	ErrClosed = errors.New("debounce: closed")
	// ErrNilHandler is returned when Add is called without a handler.
	ErrNilHandler = errors.New("debounce: handler required")
)

// Handler processes the combined text of a flushed burst. Extra arguments
// are captured by the closure.
type Handler func(ctx context.Context, senderKey, combined string) error

// FlushObserver receives one observation per flush.
type FlushObserver interface {
	ObserveFlush(batchSize int, err error)
}

type bufferedMessage struct {
	text string
	at   time.Time
}

type senderBuffer struct {
	mu       sync.Mutex
	messages []bufferedMessage
	handler  Handler
	timer    *time.Timer
	gen      uint64
}

// keyLock serializes handler runs for one sender and is dropped once no
// flush references it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Debouncer buffers messages per sender key and flushes them to a handler
// after the sender has been quiet for the configured delay.
type Debouncer struct {
	delay    time.Duration
	logger   *logging.Logger
	observer FlushObserver
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards buffers, running and closed. Lock order: mu, then senderBuffer.mu.
	mu      sync.Mutex
	closed  bool
	buffers map[string]*senderBuffer
	running map[string]*keyLock
	wg      sync.WaitGroup
}

// Option customizes a Debouncer.
type Option func(*Debouncer)

// WithObserver reports flush outcomes (usually Prometheus metrics).
func WithObserver(observer FlushObserver) Option {
	return func(d *Debouncer) {
		d.observer = observer
	}
}

// New creates a debouncer with the given quiet window.
func New(delay time.Duration, logger *logging.Logger, opts ...Option) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Debouncer{
		delay:   delay,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		buffers: make(map[string]*senderBuffer),
		running: make(map[string]*keyLock),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add buffers text for senderKey and restarts the sender's quiet window. A
// pending flush for the same sender is superseded without invoking anything.
// The most recent handler wins.
func (d *Debouncer) Add(senderKey, text string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	buf, ok := d.buffers[senderKey]
	if !ok {
		buf = &senderBuffer{}
		d.buffers[senderKey] = buf
	}
	buf.mu.Lock()
	d.mu.Unlock()
	defer buf.mu.Unlock()

	buf.messages = append(buf.messages, bufferedMessage{text: text, at: d.now()})
	buf.handler = handler
	buf.gen++
	gen := buf.gen
	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(d.delay, func() {
		d.flush(senderKey, buf, gen)
	})
	return nil
}

// Pending reports how many messages are buffered for senderKey.
func (d *Debouncer) Pending(senderKey string) int {
	d.mu.Lock()
	buf, ok := d.buffers[senderKey]
	if !ok {
		d.mu.Unlock()
		return 0
	}
	buf.mu.Lock()
	d.mu.Unlock()
	defer buf.mu.Unlock()
	return len(buf.messages)
}

// flush runs when a timer fires. A timer whose generation was superseded
// (Stop lost the race with the runtime) returns without side effects.
func (d *Debouncer) flush(senderKey string, buf *senderBuffer, gen uint64) {
	d.mu.Lock()
	buf.mu.Lock()
	if buf.gen != gen || len(buf.messages) == 0 {
		buf.mu.Unlock()
		d.mu.Unlock()
		return
	}
	batch := buf.messages
	handler := buf.handler
	buf.messages = nil
	buf.timer = nil
	if d.buffers[senderKey] == buf {
		delete(d.buffers, senderKey)
	}
	lock := d.acquireKeyLock(senderKey)
	d.wg.Add(1)
	buf.mu.Unlock()
	d.mu.Unlock()

	d.run(senderKey, batch, handler, lock)
}

func (d *Debouncer) run(senderKey string, batch []bufferedMessage, handler Handler, lock *keyLock) {
	defer d.wg.Done()

	lock.mu.Lock()
	defer d.releaseKeyLock(senderKey, lock)

	combined := joinBatch(batch)
	err := d.invoke(senderKey, combined, handler)
	if d.observer != nil {
		d.observer.ObserveFlush(len(batch), err)
	}
	if err != nil {
		d.logger.Error("debounce handler failed; buffer discarded",
			"sender", senderKey,
			"messages", len(batch),
			"error", err,
		)
		return
	}
	d.logger.Debug("debounce flushed",
		"sender", senderKey,
		"messages", len(batch),
		"window_ms", batch[len(batch)-1].at.Sub(batch[0].at).Milliseconds(),
	)
}

func (d *Debouncer) invoke(senderKey, combined string, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("debounce: handler panic: %v", r)
		}
	}()
	return handler(d.ctx, senderKey, combined)
}

// acquireKeyLock must be called with d.mu held.
func (d *Debouncer) acquireKeyLock(senderKey string) *keyLock {
	lock, ok := d.running[senderKey]
	if !ok {
		lock = &keyLock{}
		d.running[senderKey] = lock
	}
	lock.refs++
	return lock
}

func (d *Debouncer) releaseKeyLock(senderKey string, lock *keyLock) {
	lock.mu.Unlock()
	d.mu.Lock()
	lock.refs--
	if lock.refs == 0 && d.running[senderKey] == lock {
		delete(d.running, senderKey)
	}
	d.mu.Unlock()
}

// Shutdown stops accepting messages, flushes every pending buffer
// immediately and waits for in-flight handlers or ctx expiry.
func (d *Debouncer) Shutdown(ctx context.Context) error {
	type pendingFlush struct {
		key     string
		batch   []bufferedMessage
		handler Handler
		lock    *keyLock
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	var work []pendingFlush
	for key, buf := range d.buffers {
		buf.mu.Lock()
		if buf.timer != nil {
			buf.timer.Stop()
			buf.timer = nil
		}
		buf.gen++
		if len(buf.messages) > 0 {
			work = append(work, pendingFlush{
				key:     key,
				batch:   buf.messages,
				handler: buf.handler,
				lock:    d.acquireKeyLock(key),
			})
			d.wg.Add(1)
		}
		buf.messages = nil
		buf.mu.Unlock()
		delete(d.buffers, key)
	}
	d.mu.Unlock()

	for _, w := range work {
		go d.run(w.key, w.batch, w.handler, w.lock)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	defer d.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func joinBatch(batch []bufferedMessage) string {
	parts := make([]string, 0, len(batch))
	for _, msg := range batch {
		parts = append(parts, msg.text)
	}
	return strings.Join(parts, "\n")
}
