// Package persist pushes answer changes of one attempt to the server, either
// right away or after a per-item quiet period for free-text items.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

const (
	// DefaultDebounce is the quiet period before a free-text answer is written.
	DefaultDebounce = 600 * time.Millisecond
	// DefaultWriteTimeout bounds a single background upsert.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultRetry is the delay before a failed background upsert is resent.
	DefaultRetry = 5 * time.Second

	flushParallelism = 4
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("writer closed")

// Upserter stores one answer row, creating or replacing it on
// (attempt, item).
type Upserter interface {
	UpsertAnswer(ctx context.Context, row model.AnswerRow) error
}

// Options configures a Writer.
type Options struct {
	Clock        clockwork.Clock
	Debounce     time.Duration
	WriteTimeout time.Duration
	Retry        time.Duration
	Logger       *slog.Logger
	// OnWritten is called after the server acknowledged a value.
	OnWritten func(itemID string, v answer.Value)
	// OnFailed is called when a debounced upsert fails. Transient failures
	// are resent after Retry.
	OnFailed func(itemID string, err error)
}

// Writer serializes answer upserts per item. Writes to the same item reach
// the Upserter in the order the values were recorded; a write whose value was
// already superseded by a newer acknowledged write is skipped.
type Writer struct {
	attemptID string
	up        Upserter
	clock     clockwork.Clock
	debounce  time.Duration
	timeout   time.Duration
	retry     time.Duration
	log       *slog.Logger
	onWritten func(string, answer.Value)
	onFailed  func(string, error)

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

type entry struct {
	itemID   string
	itemType model.ItemType

	// wmu is held for the duration of an upsert of this item.
	wmu sync.Mutex

	// guarded by Writer.mu
	seq     uint64
	value   answer.Value
	written uint64
	timer   clockwork.Timer
	gen     uint64
	lastErr error
}

// New creates a writer for one attempt.
func New(attemptID string, up Upserter, opts Options) *Writer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{
		attemptID: attemptID,
		up:        up,
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		timeout:   opts.WriteTimeout,
		retry:     opts.Retry,
		log:       opts.Logger,
		onWritten: opts.OnWritten,
		onFailed:  opts.OnFailed,
		entries:   map[string]*entry{},
	}
}

// Record queues v for itemID. Objective items are written before Record
// returns and the upsert error, if any, is returned; the value stays queued
// for the next Flush. Free-text items (re)start the item's debounce timer
// and Record returns nil.
func (w *Writer) Record(ctx context.Context, itemID string, t model.ItemType, v answer.Value) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	e := w.entryLocked(itemID, t)
	e.seq++
	e.value = v

	if t.FreeText() {
		w.stopTimerLocked(e)
		gen := e.gen
		e.timer = w.clock.AfterFunc(w.debounce, func() { w.fire(e, gen) })
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	return w.write(ctx, e)
}

func (w *Writer) entryLocked(itemID string, t model.ItemType) *entry {
	e, ok := w.entries[itemID]
	if !ok {
		e = &entry{itemID: itemID, itemType: t}
		w.entries[itemID] = e
	}
	return e
}

// stopTimerLocked cancels a pending debounce; a callback that already
// started sees the bumped generation and returns.
func (w *Writer) stopTimerLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

func (w *Writer) fire(e *entry, gen uint64) {
	w.mu.Lock()
	if w.closed || e.gen != gen {
		w.mu.Unlock()
		return
	}
	e.timer = nil
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	err := w.write(ctx, e)
	cancel()
	if err == nil {
		return
	}
	if w.onFailed != nil {
		w.onFailed(e.itemID, err)
	}
	if !model.IsTransient(err) {
		return
	}
	w.mu.Lock()
	if !w.closed && e.gen == gen && e.timer == nil && e.seq > e.written {
		e.timer = w.clock.AfterFunc(w.retry, func() { w.fire(e, gen) })
	}
	w.mu.Unlock()
}

// write sends the latest value of e unless it is already acknowledged.
func (w *Writer) write(ctx context.Context, e *entry) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	w.mu.Lock()
	seq, v := e.seq, e.value
	current := seq <= e.written
	w.mu.Unlock()
	if current {
		return nil
	}

	b, err := answer.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode answer %s: %w", e.itemID, err)
	}
	row := model.AnswerRow{AttemptID: w.attemptID, ItemID: e.itemID, ItemType: e.itemType, Value: b}
	if err := w.up.UpsertAnswer(ctx, row); err != nil {
		w.mu.Lock()
		e.lastErr = err
		w.mu.Unlock()
		w.log.Warn("answer upsert failed", "item_id", e.itemID, "error", err)
		return fmt.Errorf("upsert answer %s: %w", e.itemID, err)
	}

	w.mu.Lock()
	if seq > e.written {
		e.written = seq
	}
	e.lastErr = nil
	w.mu.Unlock()
	w.log.Debug("answer saved", "item_id", e.itemID)
	if w.onWritten != nil {
		w.onWritten(e.itemID, v)
	}
	return nil
}

// Flush cancels every pending debounce and writes all unacknowledged values,
// including ones whose earlier upsert failed. It returns once every write
// has completed and reports the first failure.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	var dirty []*entry
	for _, e := range w.entries {
		w.stopTimerLocked(e)
		if e.seq > e.written {
			dirty = append(dirty, e)
		}
	}
	w.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(flushParallelism)
	for _, e := range dirty {
		g.Go(func() error { return w.write(ctx, e) })
	}
	return g.Wait()
}

// Pending returns the number of items with an unacknowledged value.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.entries {
		if e.seq > e.written {
			n++
		}
	}
	return n
}

// Failed returns the items whose most recent upsert failed.
func (w *Writer) Failed() map[string]error {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := map[string]error{}
	for id, e := range w.entries {
		if e.lastErr != nil {
			out[id] = e.lastErr
		}
	}
	return out
}

// Close cancels pending debounces without writing them and waits for
// in-flight background writes. Call Flush first to keep pending values.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, e := range w.entries {
		w.stopTimerLocked(e)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
