// Package session drives one student's attempt at an exam: it loads the
// attempt, keeps the answers, saves them as they change, watches the clock
// and submits the attempt exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/persist"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/timer"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateLoading          State = "loading"
	StateActive           State = "active"
	StateBlockedSubmitted State = "blocked-already-submitted"
	StateBlockedNotFound  State = "blocked-not-found"
	StateBlockedInactive  State = "blocked-inactive"
	StateError            State = "error"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
)

// Blocked reports whether the state keeps the student out of the attempt.
func (s State) Blocked() bool {
	switch s {
	case StateBlockedSubmitted, StateBlockedNotFound, StateBlockedInactive, StateError:
		return true
	}
	return false
}

// Reason tells why an attempt was submitted.
type Reason string

const (
	ReasonManual Reason = "manual"
	ReasonAuto   Reason = "auto"
)

// DefaultSubmitRetry is the pause between auto-submit attempts after a
// transient failure.
const DefaultSubmitRetry = 5 * time.Second

// API is the server side of an exam session.
type API interface {
	GetExamMeta(ctx context.Context, examID string) (model.Exam, error)
	EnsureAttempt(ctx context.Context, examID, userID string) (model.Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (model.AttemptDetail, error)
	UpsertAnswer(ctx context.Context, row model.AnswerRow) error
	SubmitAttempt(ctx context.Context, attemptID string) (model.Attempt, error)
}

// Options configures a Session. Zero values select the defaults.
type Options struct {
	Clock        clockwork.Clock
	Logger       *slog.Logger
	Debounce     time.Duration
	TickInterval time.Duration
	Thresholds   *timer.Thresholds
	SubmitRetry  time.Duration
	// Mirror keeps a local copy of the answers, if set.
	Mirror Mirror
	// OnEvent receives notices for the host. It must not block.
	OnEvent func(Event)
}

// Session is one attempt in progress. Create it with New and load it with
// Open; release it with Close.
type Session struct {
	api         API
	clock       clockwork.Clock
	log         *slog.Logger
	debounce    time.Duration
	interval    time.Duration
	thresholds  timer.Thresholds
	submitRetry time.Duration
	mirror      Mirror
	onEvent     func(Event)

	ctx    context.Context
	cancel context.CancelFunc

	// gate is held shared by answer edits and exclusively by submit, so
	// every accepted edit is flushed before the attempt is finalized.
	gate   sync.RWMutex
	submit singleflight.Group

	mu      sync.Mutex
	state   State
	errMsg  string
	exam    model.Exam
	attempt model.Attempt
	answers *answer.Store
	writer  *persist.Writer
	timer   *timer.Controller
	closed  bool
}

// New creates a session in the loading state.
func New(api API, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	th := timer.DefaultThresholds
	if opts.Thresholds != nil {
		th = *opts.Thresholds
	}
	if opts.SubmitRetry <= 0 {
		opts.SubmitRetry = DefaultSubmitRetry
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		api:         api,
		clock:       opts.Clock,
		log:         opts.Logger,
		debounce:    opts.Debounce,
		interval:    opts.TickInterval,
		thresholds:  th,
		submitRetry: opts.SubmitRetry,
		mirror:      opts.Mirror,
		onEvent:     opts.OnEvent,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateLoading,
		answers:     answer.NewStore(),
	}
}

// Open loads the exam, finds or creates the student's attempt and restores
// its answers. A blocked or failed open leaves the session in the matching
// terminal state and returns the cause.
func (s *Session) Open(ctx context.Context, examID, userID string) error {
	s.log = s.log.With("exam_id", examID, "user_id", userID)

	exam, err := s.api.GetExamMeta(ctx, examID)
	if err != nil {
		return s.fail(fmt.Errorf("load exam: %w", err))
	}
	if !exam.Status.Takeable() {
		return s.fail(fmt.Errorf("exam is %s: %w", exam.Status, model.ErrInactiveExam))
	}
	if exam.StartsAt != nil && s.clock.Now().Before(*exam.StartsAt) {
		return s.fail(fmt.Errorf("exam opens at %s: %w", exam.StartsAt.Format(time.RFC3339), model.ErrInactiveExam))
	}

	att, err := s.api.EnsureAttempt(ctx, examID, userID)
	if err != nil {
		return s.fail(fmt.Errorf("ensure attempt: %w", err))
	}
	detail, err := s.api.GetAttempt(ctx, att.ID)
	if err != nil {
		return s.fail(fmt.Errorf("load attempt: %w", err))
	}
	s.log = s.log.With("attempt_id", att.ID)

	s.mu.Lock()
	s.exam = exam
	s.attempt = detail.Attempt
	s.mu.Unlock()

	restored := s.answers.Restore(exam, detail.Answers, s.log)

	if detail.Submitted() {
		s.answers.Freeze()
		s.mu.Lock()
		s.state = StateBlockedSubmitted
		s.mu.Unlock()
		s.log.Info("attempt already submitted", "answers", restored)
		return model.ErrAlreadySubmitted
	}

	s.writer = persist.New(att.ID, s.api, persist.Options{
		Clock:     s.clock,
		Debounce:  s.debounce,
		Logger:    s.log,
		OnWritten: s.markSynced,
		OnFailed:  s.saveFailed,
	})
	if s.mirror != nil {
		s.reconcile(ctx, exam, detail)
	}

	var ctrl *timer.Controller
	if policy, ok := timer.PolicyFor(exam.ExamMeta, detail.StartedAt); ok {
		ctrl = timer.New(s.clock, policy, timer.Options{
			Interval: s.interval,
			OnTick:   s.tick,
			OnExpire: s.expire,
		})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	s.timer = ctrl
	s.state = StateActive
	s.mu.Unlock()

	s.log.Info("attempt opened", "answers", restored, "timed", ctrl != nil)
	if ctrl != nil {
		ctrl.Start()
	}
	return nil
}

// fail moves the session to the terminal state matching err.
func (s *Session) fail(err error) error {
	st := StateError
	switch {
	case errors.Is(err, model.ErrNotFound):
		st = StateBlockedNotFound
	case errors.Is(err, model.ErrInactiveExam):
		st = StateBlockedInactive
	case errors.Is(err, model.ErrAlreadySubmitted):
		st = StateBlockedSubmitted
	}
	s.mu.Lock()
	s.state = st
	if st == StateError {
		s.errMsg = err.Error()
	}
	s.mu.Unlock()
	if st == StateError {
		s.log.Error("failed to open attempt", "error", err)
	} else {
		s.log.Info("attempt blocked", "state", st, "reason", err)
	}
	return err
}

// RecordAnswer normalizes raw for the item, stores it and saves it.
// Objective items are saved before it returns; free-text items are saved
// once the student stops typing. A failed save keeps the local value and
// returns the save error; transient failures are retried on submit.
func (s *Session) RecordAnswer(ctx context.Context, itemID string, raw any) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	s.mu.Lock()
	state, exam, w, ctrl := s.state, s.exam, s.writer, s.timer
	s.mu.Unlock()

	switch state {
	case StateActive:
	case StateSubmitting, StateSubmitted, StateBlockedSubmitted:
		s.log.Error("answer change after submission", "item_id", itemID, "state", state)
		return model.ErrImmutableAttempt
	default:
		return fmt.Errorf("record answer in state %s: %w", state, model.ErrNotActive)
	}
	if ctrl != nil && ctrl.Expired() {
		return model.ErrExpired
	}

	item, ok := exam.Item(itemID)
	if !ok {
		return fmt.Errorf("record answer %s: %w", itemID, model.ErrUnknownItem)
	}
	v, err := answer.Normalize(item, raw)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("record answer %s: empty value: %w", itemID, model.ErrMalformedAnswer)
	}
	if err := s.answers.Set(itemID, v); err != nil {
		s.log.Error("answer change after submission", "item_id", itemID, "error", err)
		return err
	}
	s.saveLocal(ctx, item, v)

	if err := w.Record(ctx, itemID, item.Type, v); err != nil {
		s.emit(Event{Kind: EventSaveFailed, ItemID: itemID, Err: err})
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// saveFailed reports a failed background save of a free-text answer.
func (s *Session) saveFailed(itemID string, err error) {
	s.emit(Event{Kind: EventSaveFailed, ItemID: itemID, Err: err})
}

// Submit flushes every pending write and finalizes the attempt. Concurrent
// calls share one submission; calls after success return the submitted
// attempt without contacting the server. If a write cannot be flushed the
// attempt stays active and the write error is returned; network failures
// are reported as *model.TransientError.
func (s *Session) Submit(ctx context.Context, reason Reason) (model.Attempt, error) {
	v, err, _ := s.submit.Do("submit", func() (any, error) {
		return s.doSubmit(ctx, reason)
	})
	att, _ := v.(model.Attempt)
	return att, err
}

func (s *Session) doSubmit(ctx context.Context, reason Reason) (model.Attempt, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitted:
		att := s.attempt
		s.mu.Unlock()
		return att, nil
	case StateBlockedSubmitted:
		s.mu.Unlock()
		return model.Attempt{}, model.ErrAlreadySubmitted
	case StateActive:
	default:
		st := s.state
		s.mu.Unlock()
		return model.Attempt{}, fmt.Errorf("submit in state %s: %w", st, model.ErrNotActive)
	}
	s.state = StateSubmitting
	attemptID, w := s.attempt.ID, s.writer
	s.mu.Unlock()

	s.gate.Lock()
	defer s.gate.Unlock()

	log := s.log.With("reason", reason)
	log.Info("submitting attempt")

	if err := w.Flush(ctx); err != nil {
		return s.submitFailed(log, reason, fmt.Errorf("flush answers: %w", err))
	}
	att, err := s.api.SubmitAttempt(ctx, attemptID)
	if err != nil {
		return s.submitFailed(log, reason, fmt.Errorf("submit attempt: %w", err))
	}

	s.answers.Freeze()
	s.mu.Lock()
	s.state = StateSubmitted
	s.attempt = att
	ctrl := s.timer
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.Stop()
	}
	w.Close()
	s.dropLocal(ctx, attemptID)

	log.Info("attempt submitted")
	s.emit(Event{Kind: EventSubmitted, Reason: reason})
	return att, nil
}

func (s *Session) submitFailed(log *slog.Logger, reason Reason, err error) (model.Attempt, error) {
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
	log.Warn("submit failed", "error", err)
	s.emit(Event{Kind: EventSubmitFailed, Reason: reason, Err: err})
	return model.Attempt{}, err
}

func (s *Session) tick(remaining time.Duration) {
	s.mu.Lock()
	ctrl := s.timer
	s.mu.Unlock()
	band := timer.BandNominal
	if ctrl != nil {
		band = timer.BandFor(ctrl.Percent(), s.thresholds)
	}
	s.emit(Event{Kind: EventTick, Remaining: remaining, Band: band})
}

// expire runs on the timer goroutine once time is up. It keeps retrying the
// submission while failures are transient and the session is open.
func (s *Session) expire() {
	s.log.Info("time is up")
	s.emit(Event{Kind: EventExpired})
	for {
		_, err := s.Submit(s.ctx, ReasonAuto)
		if err == nil {
			return
		}
		if !model.IsTransient(err) {
			s.log.Error("auto-submit failed", "error", err)
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.clock.After(s.submitRetry):
		}
	}
}

func (s *Session) emit(e Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorMessage returns the message of a failed open.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Exam returns the loaded exam as the student sees it.
func (s *Session) Exam() model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// Attempt returns the current attempt record.
func (s *Session) Attempt() model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Answer returns the stored answer of an item; ok is false when the item is
// unanswered.
func (s *Session) Answer(itemID string) (answer.Value, bool) {
	return s.answers.Get(itemID)
}

// Answers returns a copy of all stored answers.
func (s *Session) Answers() map[string]answer.Value {
	return s.answers.Snapshot()
}

// AnsweredCount returns the number of answered items.
func (s *Session) AnsweredCount() int {
	return s.answers.Len()
}

// ProgressPercent returns answered/total rounded to a whole percent, or 0
// for an exam without items.
func (s *Session) ProgressPercent() int {
	total := len(s.Exam().Items)
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(s.AnsweredCount()) / float64(total) * 100))
}

// Remaining returns the remaining time; ok is false for untimed exams.
func (s *Session) Remaining() (time.Duration, bool) {
	s.mu.Lock()
	ctrl := s.timer
	s.mu.Unlock()
	if ctrl == nil {
		return 0, false
	}
	return ctrl.Remaining(), true
}

// Band returns the time band of a timed exam.
func (s *Session) Band() timer.Band {
	s.mu.Lock()
	ctrl := s.timer
	s.mu.Unlock()
	if ctrl == nil {
		return timer.BandNominal
	}
	return timer.BandFor(ctrl.Percent(), s.thresholds)
}

// Pending returns the number of answers not yet acknowledged by the server.
func (s *Session) Pending() int {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()
	if w == nil {
		return 0
	}
	return w.Pending()
}

// Unsaved returns the items whose latest save failed, in exam order.
func (s *Session) Unsaved() []string {
	s.mu.Lock()
	w, exam := s.writer, s.exam
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	failed := w.Failed()
	var out []string
	for _, it := range exam.Items {
		if _, ok := failed[it.ID]; ok {
			out = append(out, it.ID)
		}
	}
	return out
}

// Close stops the timer and any auto-submit retry, saves pending answers of
// an active attempt and releases the writer.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	state, ctrl, w := s.state, s.timer, s.writer
	s.mu.Unlock()

	s.cancel()
	if ctrl != nil {
		ctrl.Stop()
	}
	if w == nil {
		return nil
	}
	var err error
	if state == StateActive {
		if err = w.Flush(ctx); err != nil {
			err = fmt.Errorf("save pending answers: %w", err)
		}
	}
	w.Close()
	return err
}
