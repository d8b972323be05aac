package alarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
)

var reconBase = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func marker(path string, at time.Time) dvrip.FileDescriptor {
	return dvrip.FileDescriptor{
		Path:      path,
		Kind:      dvrip.KindImageMarker,
		BeginTime: at,
		EndTime:   at,
	}
}

func clip(path string, at time.Time) dvrip.FileDescriptor {
	return dvrip.FileDescriptor{
		Path:      path,
		Kind:      dvrip.KindMotionClip,
		BeginTime: at,
		EndTime:   at.Add(30 * time.Second),
	}
}

func TestReconcileMarkersOnly(t *testing.T) {
	markers := []dvrip.FileDescriptor{
		marker("/idea0/b.jpg", reconBase.Add(20*time.Second)),
		marker("/idea0/a.jpg", reconBase),
	}

	events := Reconcile(markers, nil, nil, ReconcilerConfig{})

	require.Len(t, events, 2)
	assert.Equal(t, "/idea0/a.jpg", events[0].SourceMarker.Path)
	assert.Equal(t, "/idea0/b.jpg", events[1].SourceMarker.Path)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
	for _, ev := range events {
		assert.Equal(t, ResolutionUnresolved, ev.Resolution)
		assert.False(t, ev.Realtime)
		assert.NotEqual(t, uuid.Nil, ev.ID)
	}
}

func TestReconcileRealtimeMatchesMarker(t *testing.T) {
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}
	realtime := []Signal{{Timestamp: reconBase.Add(2 * time.Second), Code: "M"}}

	events := Reconcile(markers, nil, realtime, ReconcilerConfig{Tolerance: 3 * time.Second})

	require.Len(t, events, 1)
	assert.True(t, events[0].Realtime)
	assert.Equal(t, "M", events[0].Code)
	assert.Equal(t, "/idea0/a.jpg", events[0].SourceMarker.Path)
}

func TestReconcileRealtimeOutsideToleranceStandsAlone(t *testing.T) {
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}
	realtime := []Signal{{Timestamp: reconBase.Add(10 * time.Second), Code: "H"}}

	events := Reconcile(markers, nil, realtime, ReconcilerConfig{Tolerance: 3 * time.Second})

	require.Len(t, events, 2)
	assert.NotNil(t, events[0].SourceMarker)
	assert.Nil(t, events[1].SourceMarker)
	assert.True(t, events[1].Realtime)
	assert.Equal(t, "H", events[1].Code)
}

func TestReconcileCollapsesNearbyMarkers(t *testing.T) {
	// The camera often writes two index entries one second apart for the
	// same motion burst.
	markers := []dvrip.FileDescriptor{
		marker("/idea0/a.jpg", reconBase),
		marker("/idea0/b.jpg", reconBase.Add(1*time.Second)),
		marker("/idea0/c.jpg", reconBase.Add(20*time.Second)),
	}

	events := Reconcile(markers, nil, nil, ReconcilerConfig{Tolerance: 3 * time.Second})

	require.Len(t, events, 2)
	assert.Equal(t, "/idea0/a.jpg", events[0].SourceMarker.Path)
	assert.Equal(t, "/idea0/c.jpg", events[1].SourceMarker.Path)
}

func TestReconcileCollapseFillsGaps(t *testing.T) {
	// The kept event is the earliest of the group; missing pieces come
	// from the ones it swallows.
	realtime := []Signal{{Timestamp: reconBase, Code: "M"}}
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase.Add(2 * time.Second))}

	events := Reconcile(markers, nil, realtime, ReconcilerConfig{Tolerance: time.Second})

	// Tolerance 1s: the signal does not attach to the marker event, but
	// collapse still runs at the same tolerance, so they stay separate.
	require.Len(t, events, 2)

	events = Reconcile(markers, nil, realtime, ReconcilerConfig{Tolerance: 3 * time.Second})
	require.Len(t, events, 1)
	assert.Equal(t, "M", events[0].Code)
	assert.True(t, events[0].Realtime)
	require.NotNil(t, events[0].SourceMarker)
	assert.Equal(t, "/idea0/a.jpg", events[0].SourceMarker.Path)
}

func TestReconcileMatchesNearestClip(t *testing.T) {
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}
	clips := []dvrip.FileDescriptor{
		clip("/idea0/far.h264", reconBase.Add(2*time.Minute)),
		clip("/idea0/near.h264", reconBase.Add(-10*time.Second)),
	}

	events := Reconcile(markers, clips, nil, ReconcilerConfig{})

	require.Len(t, events, 1)
	require.NotNil(t, events[0].MatchedClip)
	assert.Equal(t, "/idea0/near.h264", events[0].MatchedClip.Path)
	assert.Equal(t, "/idea0/near.h264", events[0].Report.ClipPath)
}

func TestReconcileClipOutsideWindowIgnored(t *testing.T) {
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}
	clips := []dvrip.FileDescriptor{clip("/idea0/old.h264", reconBase.Add(-time.Hour))}

	events := Reconcile(markers, clips, nil, ReconcilerConfig{ClipWindow: 3 * time.Minute})

	require.Len(t, events, 1)
	assert.Nil(t, events[0].MatchedClip)
}

func TestReconcileEquidistantClipTieBreak(t *testing.T) {
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}
	clips := []dvrip.FileDescriptor{
		clip("/idea0/after.h264", reconBase.Add(5*time.Second)),
		clip("/idea0/before.h264", reconBase.Add(-5*time.Second)),
	}

	earlier := Reconcile(markers, clips, nil, ReconcilerConfig{PreferLaterClip: false})
	require.NotNil(t, earlier[0].MatchedClip)
	assert.Equal(t, "/idea0/before.h264", earlier[0].MatchedClip.Path)

	later := Reconcile(markers, clips, nil, ReconcilerConfig{PreferLaterClip: true})
	require.NotNil(t, later[0].MatchedClip)
	assert.Equal(t, "/idea0/after.h264", later[0].MatchedClip.Path)
}

func TestReconcileZeroConfigPrefersEarlierClip(t *testing.T) {
	markers := []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}
	clips := []dvrip.FileDescriptor{
		clip("/idea0/after.h264", reconBase.Add(5*time.Second)),
		clip("/idea0/before.h264", reconBase.Add(-5*time.Second)),
	}

	events := Reconcile(markers, clips, nil, ReconcilerConfig{})

	require.Len(t, events, 1)
	require.NotNil(t, events[0].MatchedClip)
	assert.Equal(t, "/idea0/before.h264", events[0].MatchedClip.Path)
}

func TestReconcileDeterministic(t *testing.T) {
	markers := []dvrip.FileDescriptor{
		marker("/idea0/a.jpg", reconBase),
		marker("/idea0/b.jpg", reconBase.Add(time.Second)),
		marker("/idea0/c.jpg", reconBase.Add(30*time.Second)),
	}
	clips := []dvrip.FileDescriptor{clip("/idea0/m.h264", reconBase.Add(-2 * time.Second))}
	realtime := []Signal{
		{Timestamp: reconBase.Add(time.Second), Code: "M"},
		{Timestamp: reconBase.Add(time.Minute), Code: "H"},
	}
	cfg := ReconcilerConfig{Tolerance: 3 * time.Second}

	first := Reconcile(markers, clips, realtime, cfg)
	second := Reconcile(markers, clips, realtime, cfg)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Timestamp, second[i].Timestamp)
		assert.Equal(t, first[i].Code, second[i].Code)
		assert.Equal(t, first[i].Realtime, second[i].Realtime)
		assert.Equal(t, first[i].Report.MarkerPath, second[i].Report.MarkerPath)
		assert.Equal(t, first[i].Report.ClipPath, second[i].Report.ClipPath)
	}
}

func TestReconcileEmptyInputs(t *testing.T) {
	assert.Empty(t, Reconcile(nil, nil, nil, ReconcilerConfig{}))
}
