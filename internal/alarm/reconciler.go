package alarm

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
)

// Signal is a bare realtime timestamp from the push channel.
type Signal struct {
	Timestamp time.Time
	Code      string
}

type ReconcilerConfig struct {
	// Tolerance is the window within which two signals are the same alarm.
	Tolerance time.Duration
	// ClipWindow bounds the search for a motion clip near an event.
	ClipWindow time.Duration
	// PreferLaterClip breaks ties between equidistant clips in favor of
	// the one starting after the event. Off by default: the clip already
	// recording when the alarm fired usually contains it. Field
	// observation, not a protocol guarantee, hence a policy knob.
	PreferLaterClip bool
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.Tolerance == 0 {
		c.Tolerance = 3 * time.Second
	}
	if c.ClipWindow == 0 {
		c.ClipWindow = 3 * time.Minute
	}
	return c
}

// Reconcile merges marker descriptors, clip descriptors and realtime
// signals from one query window into a deduplicated event list, ascending
// by timestamp. Markers are the primary "an alarm happened here" source;
// realtime signals not matching any marker become marker-less events.
// Deterministic: the same inputs produce the same list.
func Reconcile(markers, clips []dvrip.FileDescriptor, realtime []Signal, cfg ReconcilerConfig) []*Event {
	cfg = cfg.withDefaults()

	events := make([]*Event, 0, len(markers)+len(realtime))
	for i := range markers {
		fd := markers[i]
		events = append(events, &Event{
			Timestamp:    fd.BeginTime,
			SourceMarker: &fd,
			Resolution:   ResolutionUnresolved,
			Report:       Report{MarkerPath: fd.Path},
		})
	}

	for _, sig := range realtime {
		if ev := nearestEvent(events, sig.Timestamp, cfg.Tolerance); ev != nil {
			ev.Realtime = true
			if ev.Code == "" {
				ev.Code = sig.Code
			}
			continue
		}
		events = append(events, &Event{
			Timestamp:  sig.Timestamp,
			Code:       sig.Code,
			Realtime:   true,
			Resolution: ResolutionUnresolved,
		})
	}

	for _, ev := range events {
		if clip := matchClip(clips, ev.Timestamp, cfg); clip != nil {
			ev.MatchedClip = clip
			ev.Report.ClipPath = clip.Path
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	events = collapse(events, cfg.Tolerance)

	for _, ev := range events {
		ev.ID = uuid.New()
	}
	return events
}

func nearestEvent(events []*Event, ts time.Time, tolerance time.Duration) *Event {
	var best *Event
	var bestDist time.Duration
	for _, ev := range events {
		d := absDuration(ev.Timestamp.Sub(ts))
		if d > tolerance {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = ev, d
		}
	}
	return best
}

// matchClip picks the clip whose BeginTime is closest to ts within the
// window. Equidistant candidates fall to the tie-break policy: the camera
// writes motion clips slightly ahead of the marker, so the earlier clip is
// usually the right one.
func matchClip(clips []dvrip.FileDescriptor, ts time.Time, cfg ReconcilerConfig) *dvrip.FileDescriptor {
	var best *dvrip.FileDescriptor
	var bestDist time.Duration

	for i := range clips {
		clip := clips[i]
		d := absDuration(clip.BeginTime.Sub(ts))
		if d > cfg.ClipWindow {
			continue
		}
		switch {
		case best == nil, d < bestDist:
			best, bestDist = &clip, d
		case d == bestDist:
			earlier := clip.BeginTime.Before(best.BeginTime)
			if (cfg.PreferLaterClip && !earlier) || (!cfg.PreferLaterClip && earlier) {
				best = &clip
			}
		}
	}
	return best
}

// collapse merges events closer together than tolerance, keeping the
// earliest and filling its gaps from the ones it swallows.
func collapse(sorted []*Event, tolerance time.Duration) []*Event {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, ev := range sorted[1:] {
		kept := out[len(out)-1]
		if ev.Timestamp.Sub(kept.Timestamp) >= tolerance {
			out = append(out, ev)
			continue
		}
		if kept.SourceMarker == nil && ev.SourceMarker != nil {
			kept.SourceMarker = ev.SourceMarker
			kept.Report.MarkerPath = ev.Report.MarkerPath
		}
		if kept.MatchedClip == nil && ev.MatchedClip != nil {
			kept.MatchedClip = ev.MatchedClip
			kept.Report.ClipPath = ev.Report.ClipPath
		}
		if kept.Code == "" {
			kept.Code = ev.Code
		}
		kept.Realtime = kept.Realtime || ev.Realtime
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
