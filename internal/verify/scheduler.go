package verify

import (
	"sort"
	"sync"
	"time"
)

// Scheduler owns per-session warning timers keyed by session id, built on
// time.AfterFunc rather than a goroutine-per-threshold, so cancellation
// removes all pending work for a session deterministically.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string][]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string][]*time.Timer)}
}

// Schedule arms one timer per warning threshold (minutes remaining before
// expiresAt). fire is called with the threshold and the 1-based count of
// warnings issued so far for this session, so restarts never double-fire
// a given threshold twice in the same run.
func (s *Scheduler) Schedule(sessionID string, expiresAt time.Time, warningsMinutes []float64, fire func(minutesRemaining float64, warningsIssued int)) {
	thresholds := append([]float64(nil), warningsMinutes...)
	sort.Sort(sort.Reverse(sort.Float64Slice(thresholds)))

	s.mu.Lock()
	defer s.mu.Unlock()

	var timers []*time.Timer
	for i, minutes := range thresholds {
		fireAt := expiresAt.Add(-time.Duration(minutes * float64(time.Minute)))
		delay := time.Until(fireAt)
		if delay < 0 {
			continue
		}
		idx := i + 1
		m := minutes
		t := time.AfterFunc(delay, func() {
			fire(m, idx)
		})
		timers = append(timers, t)
	}
	s.timers[sessionID] = timers
}

// Cancel stops all pending timers for a session.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers[sessionID] {
		t.Stop()
	}
	delete(s.timers, sessionID)
}
