package coordinator

import "time"

// timeoutEvent is pushed to the loop when a stateTimer expires.
type timeoutEvent struct {
	timer *stateTimer
	gen   uint64
}

func (timeoutEvent) isEvent() {}

// stateTimer is a one-shot timer whose expiry is delivered to the event
// loop. Arming and disarming bump the generation, so an expiry that raced
// with a disarm is recognized as stale and dropped.
//
// Only the event loop calls arm, disarm and expire.
type stateTimer struct {
	name string
	push func(timeoutEvent)

	gen   uint64
	timer *time.Timer
}

func newStateTimer(name string, push func(timeoutEvent)) *stateTimer {
	return &stateTimer{name: name, push: push}
}

// arm (re)starts the timer.
func (t *stateTimer) arm(d time.Duration) {
	t.disarm()
	ev := timeoutEvent{timer: t, gen: t.gen}
	t.timer = time.AfterFunc(d, func() { t.push(ev) })
}

// disarm stops the timer. A pending expiry becomes stale.
func (t *stateTimer) disarm() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
}

// armed reports whether the timer is running.
func (t *stateTimer) armed() bool {
	return t.timer != nil
}

// expire consumes an expiry of generation gen. It returns false when the
// expiry is stale.
func (t *stateTimer) expire(gen uint64) bool {
	if t.timer == nil || gen != t.gen {
		return false
	}
	t.timer = nil
	t.gen++
	return true
}
