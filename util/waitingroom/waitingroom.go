package waitingroom

import (
	"sort"
	"sync"
	"time"

	"github.com/lunfardo314/unitrie/common"
	"go.uber.org/atomic"
)

// WaitingRoom calls functions at a given time, with the precision of the polling period.
// Functions due at the same poll are called sequentially in the polling goroutine
type WaitingRoom struct {
	mutex   sync.Mutex
	d       map[time.Time][]func()
	period  time.Duration
	stopped atomic.Bool
}

const DefaultPollingPeriod = 1 * time.Second

func New(pollEvery ...time.Duration) *WaitingRoom {
	ret := &WaitingRoom{
		d:      make(map[time.Time][]func()),
		period: DefaultPollingPeriod,
	}
	if len(pollEvery) > 0 && pollEvery[0] > 0 {
		ret.period = pollEvery[0]
	}

	go ret.polling()
	return ret
}

func (d *WaitingRoom) polling() {
	for {
		time.Sleep(d.period)

		if d.stopped.Load() {
			return
		}
		for _, fun := range d.due(time.Now()) {
			if d.stopped.Load() {
				return
			}
			fun()
		}
	}
}

// due removes and returns functions scheduled not after the time, in the order of the deadlines
func (d *WaitingRoom) due(nowis time.Time) []func() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	deadlines := make([]time.Time, 0)
	for t := range d.d {
		if !t.After(nowis) {
			deadlines = append(deadlines, t)
		}
	}
	sort.Slice(deadlines, func(i, j int) bool {
		return deadlines[i].Before(deadlines[j])
	})

	ret := make([]func(), 0)
	for _, t := range deadlines {
		ret = append(ret, d.d[t]...)
		delete(d.d, t)
	}
	return ret
}

func (d *WaitingRoom) Stop() {
	d.stopped.Store(true)
}

func (d *WaitingRoom) IsStopped() bool {
	return d.stopped.Load()
}

func (d *WaitingRoom) WaitUntil(t time.Time, fun func()) {
	common.Assert(!d.stopped.Load(), "WaitingRoom already stopped")

	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.d[t] = append(d.d[t], fun)
}

func (d *WaitingRoom) CallDelayed(t time.Duration, fun func()) {
	d.WaitUntil(time.Now().Add(t), fun)
}
