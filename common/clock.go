package common

import (
	"sort"
	"sync"
	"time"
)

type Timer interface {
	Stop() bool
}

// Clock is the time source of timeouts.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type GoTimeClock struct {
}

func (cl *GoTimeClock) Now() time.Time {
	return time.Now()
}

func (cl *GoTimeClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type testTimer struct {
	cl *TestClock
	at time.Time
	f  func()
}

func (tm *testTimer) Stop() bool {
	tm.cl.Lock()
	defer tm.cl.Unlock()

	for i, t := range tm.cl.timers {
		if t == tm {
			tm.cl.timers = append(tm.cl.timers[:i], tm.cl.timers[i+1:]...)
			return true
		}
	}
	return false
}

// TestClock only moves when told to. Due timers run in deadline order on
// the goroutine moving the clock, without the lock held.
type TestClock struct {
	sync.Mutex
	now    time.Time
	timers []*testTimer
}

func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now}
}

func (cl *TestClock) Now() time.Time {
	cl.Lock()
	defer cl.Unlock()

	return cl.now
}

func (cl *TestClock) AfterFunc(d time.Duration, f func()) Timer {
	cl.Lock()
	defer cl.Unlock()

	tm := &testTimer{cl: cl, at: cl.now.Add(d), f: f}
	cl.timers = append(cl.timers, tm)
	return tm
}

// Pending returns the number of timers not fired nor stopped.
func (cl *TestClock) Pending() int {
	cl.Lock()
	defer cl.Unlock()

	return len(cl.timers)
}

func (cl *TestClock) PassTime(d time.Duration) {
	cl.SetTime(cl.Now().Add(d))
}

// SetTime moves the clock to t and fires the timers due. Moving backward
// is ignored.
func (cl *TestClock) SetTime(t time.Time) {
	cl.Lock()
	if t.Before(cl.now) {
		cl.Unlock()
		return
	}
	cl.now = t
	var due, rest []*testTimer
	for _, tm := range cl.timers {
		if tm.at.After(t) {
			rest = append(rest, tm)
		} else {
			due = append(due, tm)
		}
	}
	cl.timers = rest
	cl.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].at.Before(due[j].at)
	})
	for _, tm := range due {
		tm.f()
	}
}
