package assistant

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"
)

// ErrReplyPending is returned when a reply is already scheduled for the session.
var ErrReplyPending = errors.New("assistant: a reply is already scheduled")

// DelayPolicy turns reply length into simulated typing time.
type DelayPolicy struct {
	Min     time.Duration
	Max     time.Duration
	PerChar time.Duration
}

// DefaultDelayPolicy is tuned so short replies still show the typing indicator.
var DefaultDelayPolicy = DelayPolicy{
	Min:     600 * time.Millisecond,
	Max:     3 * time.Second,
	PerChar: 15 * time.Millisecond,
}

// Delay is Min + PerChar*runes, capped at Max. It is non-decreasing in length.
func (p DelayPolicy) Delay(text string) time.Duration {
	min, max := p.Min, p.Max
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	n := utf8.RuneCountInString(text)
	if p.PerChar <= 0 || n == 0 {
		return min
	}
	// Avoid overflow on very long text.
	if room := max - min; time.Duration(n) > room/p.PerChar {
		return max
	}
	return min + time.Duration(n)*p.PerChar
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Task is a scheduled reply. Cancel guarantees the callback will not run
// if it has not started yet.
type Task struct {
	mu        sync.Mutex
	timer     stopper
	fired     bool
	cancelled bool
	delay     time.Duration
	onDone    func(*Task)
}

// Delay reports how long the task waits before firing.
func (t *Task) Delay() time.Duration { return t.delay }

// Cancel stops the task. It reports whether the callback was prevented.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.fired || t.cancelled {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	onDone := t.onDone
	t.mu.Unlock()
	if onDone != nil {
		onDone(t)
	}
	return true
}

// claim marks the task fired unless it was cancelled first.
func (t *Task) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.fired = true
	return true
}

// Scheduler runs at most one delayed reply at a time for one session.
type Scheduler struct {
	policy    DelayPolicy
	afterFunc afterFunc

	mu      sync.Mutex
	pending *Task
}

// NewScheduler creates a scheduler using policy.
func NewScheduler(policy DelayPolicy) *Scheduler {
	return &Scheduler{policy: policy, afterFunc: realAfterFunc}
}

// Policy returns the delay policy in use.
func (s *Scheduler) Policy() DelayPolicy { return s.policy }

// Pending reports whether a reply is scheduled and has not fired yet.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// ScheduleReply runs callback after the typing delay for content.
func (s *Scheduler) ScheduleReply(content string, callback func()) (*Task, error) {
	return s.schedule(s.policy.Delay(content), callback)
}

func (s *Scheduler) schedule(delay time.Duration, callback func()) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return nil, ErrReplyPending
	}
	task := &Task{delay: delay, onDone: s.release}
	s.pending = task

	task.mu.Lock()
	task.timer = s.afterFunc(delay, func() {
		if !task.claim() {
			return
		}
		s.release(task)
		callback()
	})
	task.mu.Unlock()
	return task, nil
}

func (s *Scheduler) release(t *Task) {
	s.mu.Lock()
	if s.pending == t {
		s.pending = nil
	}
	s.mu.Unlock()
}

// CancelPending cancels the outstanding task, if any.
func (s *Scheduler) CancelPending() bool {
	s.mu.Lock()
	task := s.pending
	s.mu.Unlock()
	if task == nil {
		return false
	}
	return task.Cancel()
}
