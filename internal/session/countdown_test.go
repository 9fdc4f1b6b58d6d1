package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// scriptedClock returns the given offsets from baseTime one per call and
// repeats the last one.
func scriptedClock(offsets ...time.Duration) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		off := offsets[min(i, len(offsets)-1)]
		i++
		return baseTime.Add(off)
	}
}

type recordingListener struct {
	mu        sync.Mutex
	ticks     []int
	expired   int
	deadlines int

	expiredCh  chan struct{}
	deadlineCh chan struct{}
	onTick     func(room *Room)
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		expiredCh:  make(chan struct{}, 1),
		deadlineCh: make(chan struct{}, 1),
	}
}

func (l *recordingListener) Tick(room *Room, secs int) {
	l.mu.Lock()
	l.ticks = append(l.ticks, secs)
	l.mu.Unlock()
	if l.onTick != nil {
		l.onTick(room)
	}
}

func (l *recordingListener) Expired(*Room) {
	l.mu.Lock()
	l.expired++
	l.mu.Unlock()
	l.expiredCh <- struct{}{}
}

func (l *recordingListener) Deadline(*Room) {
	l.mu.Lock()
	l.deadlines++
	l.mu.Unlock()
	l.deadlineCh <- struct{}{}
}

func (l *recordingListener) snapshot() (ticks []int, expired, deadlines int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.ticks...), l.expired, l.deadlines
}

func startCountdown(deadline time.Time, grace time.Duration, l CountdownListener, clock func() time.Time) *Countdown {
	room := newRoom(RoomKey{ExamID: uuid.New(), ScheduleID: uuid.New()}, deadline, clock)
	c := newCountdown(room, time.Millisecond, grace, l, clock)
	room.countdown = c
	c.start()
	return c
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestCountdown_TicksDownThenExpiresOnce(t *testing.T) {
	l := newRecordingListener()
	clock := scriptedClock(time.Second, 2*time.Second, 3*time.Second, 4*time.Second, 5*time.Second, 6*time.Second)

	c := startCountdown(baseTime.Add(5*time.Second), 0, l, clock)
	waitClosed(t, c.Done())

	ticks, expired, deadlines := l.snapshot()
	req := require.New(t)
	req.Equal([]int{4, 3, 2, 1}, ticks)
	req.Equal(1, expired)
	req.Equal(1, deadlines)
}

func TestCountdown_ClockStepBackDoesNotIncrease(t *testing.T) {
	l := newRecordingListener()
	clock := scriptedClock(time.Second, 3*time.Second, 2*time.Second, 2*time.Second, 4*time.Second, 9*time.Second)

	c := startCountdown(baseTime.Add(5*time.Second), 0, l, clock)
	waitClosed(t, c.Done())

	ticks, expired, _ := l.snapshot()
	req := require.New(t)
	req.Equal([]int{4, 2, 2, 2, 1}, ticks)
	req.Equal(1, expired)
	for i := 1; i < len(ticks); i++ {
		req.LessOrEqual(ticks[i], ticks[i-1])
	}
}

func TestCountdown_StopDuringGraceSkipsDeadline(t *testing.T) {
	l := newRecordingListener()

	c := startCountdown(baseTime, time.Hour, l, fixedClock(baseTime))
	waitClosed(t, l.expiredCh)
	c.Stop()
	c.Stop()
	waitClosed(t, c.Done())

	_, expired, deadlines := l.snapshot()
	require.Equal(t, 1, expired)
	require.Zero(t, deadlines)
}

func TestCountdown_GraceDelaysDeadline(t *testing.T) {
	l := newRecordingListener()
	start := time.Now()

	c := startCountdown(baseTime, 50*time.Millisecond, l, fixedClock(baseTime))
	waitClosed(t, l.deadlineCh)
	waitClosed(t, c.Done())

	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCountdown_StopFromOwnCallback(t *testing.T) {
	l := newRecordingListener()
	l.onTick = func(room *Room) { room.stopCountdown() }

	c := startCountdown(baseTime.Add(time.Hour), 0, l, fixedClock(baseTime))
	waitClosed(t, c.Done())

	ticks, expired, _ := l.snapshot()
	require.Len(t, ticks, 1)
	require.Zero(t, expired)
}
