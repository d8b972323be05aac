package alarm

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Timeline is the synchronized meeting point of the two alarm channels.
// The realtime listener appends signals; the reconciler reads a window per
// resolution pass. It also tracks which marker paths have already been
// processed so the polling loop never resolves the same marker twice.
type Timeline struct {
	mu      sync.Mutex
	signals []Signal
	max     int

	known *lru.Cache[string, time.Time]
}

func NewTimeline(maxSignals, knownCapacity int) *Timeline {
	if maxSignals <= 0 {
		maxSignals = 1024
	}
	if knownCapacity <= 0 {
		knownCapacity = 4096
	}
	known, _ := lru.New[string, time.Time](knownCapacity)
	return &Timeline{max: maxSignals, known: known}
}

// Add appends one realtime signal, evicting the oldest past capacity.
func (t *Timeline) Add(sig Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals = append(t.signals, sig)
	if len(t.signals) > t.max {
		t.signals = t.signals[len(t.signals)-t.max:]
	}
}

// Window returns a copy of the signals within [begin, end].
func (t *Timeline) Window(begin, end time.Time) []Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Signal
	for _, s := range t.signals {
		if s.Timestamp.Before(begin) || s.Timestamp.After(end) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// MarkKnown records a marker path and reports whether it was new.
func (t *Timeline) MarkKnown(path string) bool {
	if path == "" {
		return false
	}
	if _, seen := t.known.Get(path); seen {
		return false
	}
	t.known.Add(path, time.Now())
	return true
}
