// Package notify delivers best-effort notifications to family members.
// Dispatch never returns an error to callers: a failed delivery is logged and
// dropped, and must never roll back the state change that triggered it.
package notify

import (
	"log"
	"os"
	"sync"
)

const (
	EventInstanceCreated  = "instance_created"
	EventTaskCompleted    = "task_completed"
	EventTaskApproved     = "task_approved"
	EventTaskRejected     = "task_rejected"
	EventPenaltyApplied   = "penalty_applied"
	EventTaskClaimed      = "task_claimed"
	EventNegotiation      = "negotiation"
	EventRedemption       = "redemption"
)

type Event struct {
	Kind    string
	UserID  uint
	Message string
}

type Dispatcher interface {
	Dispatch(ev Event)
}

var (
	defaultMu sync.Mutex
	defaultD  Dispatcher
)

// Default returns the process-wide dispatcher: Telegram-backed when
// TELEGRAM_BOT_TOKEN is configured, log-only otherwise.
func Default() Dispatcher {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultD == nil {
		if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
			if d, err := NewTelegramDispatcher(token); err == nil {
				defaultD = d
			} else {
				log.Printf("[notify] telegram init failed, falling back to log: %v", err)
			}
		}
		if defaultD == nil {
			defaultD = LogDispatcher{}
		}
	}
	return defaultD
}

// SetDefault overrides the process-wide dispatcher. Tests use this to capture
// events.
func SetDefault(d Dispatcher) {
	defaultMu.Lock()
	defaultD = d
	defaultMu.Unlock()
}

// LogDispatcher writes events to the process log. It is the fallback when no
// transport is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ev Event) {
	log.Printf("[notify] kind=%s user=%d %s", ev.Kind, ev.UserID, ev.Message)
}
