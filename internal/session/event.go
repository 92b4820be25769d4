package session

import (
	"time"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/timer"
)

// EventKind identifies a session notice.
type EventKind string

const (
	EventTick         EventKind = "tick"
	EventExpired      EventKind = "expired"
	EventSaveFailed   EventKind = "save_failed"
	EventSubmitFailed EventKind = "submit_failed"
	EventSubmitted    EventKind = "submitted"
)

// Event is a notice delivered to Options.OnEvent.
type Event struct {
	Kind      EventKind
	Remaining time.Duration
	Band      timer.Band
	ItemID    string
	Reason    Reason
	Err       error
}
