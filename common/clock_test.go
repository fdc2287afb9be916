package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTestClock_FiresInOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	cl := NewTestClock(start)

	var fired []int
	cl.AfterFunc(3*time.Second, func() { fired = append(fired, 3) })
	cl.AfterFunc(1*time.Second, func() { fired = append(fired, 1) })
	stopped := cl.AfterFunc(2*time.Second, func() { fired = append(fired, 2) })
	cl.AfterFunc(10*time.Second, func() { fired = append(fired, 10) })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())
	assert.Equal(t, 3, cl.Pending())

	cl.PassTime(5 * time.Second)
	assert.Equal(t, []int{1, 3}, fired)
	assert.Equal(t, start.Add(5*time.Second), cl.Now())
	assert.Equal(t, 1, cl.Pending())

	cl.SetTime(start)
	assert.Equal(t, start.Add(5*time.Second), cl.Now())

	cl.PassTime(5 * time.Second)
	assert.Equal(t, []int{1, 3, 10}, fired)
	assert.Zero(t, cl.Pending())
}

func TestTestClock_TimerSchedulesTimer(t *testing.T) {
	cl := NewTestClock(time.Unix(0, 0))
	var count int
	var tick func()
	tick = func() {
		count++
		cl.AfterFunc(time.Second, tick)
	}
	cl.AfterFunc(time.Second, tick)

	cl.PassTime(time.Second)
	assert.Equal(t, 1, count)
	cl.PassTime(time.Second)
	assert.Equal(t, 2, count)
}
