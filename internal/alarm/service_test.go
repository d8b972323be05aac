package alarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
)

type fakeQuerier struct {
	markers   []dvrip.FileDescriptor
	clips     []dvrip.FileDescriptor
	recent    []dvrip.FileDescriptor
	markerErr error
	clipErr   error
	recentErr error

	queries     []dvrip.QueryParams
	recentCalls int
}

func (q *fakeQuerier) QueryFiles(_ context.Context, p dvrip.QueryParams) ([]dvrip.FileDescriptor, error) {
	q.queries = append(q.queries, p)
	if p.Kind == dvrip.KindMotionClip {
		return q.clips, q.clipErr
	}
	return q.markers, q.markerErr
}

func (q *fakeQuerier) RecentMarkers(_ context.Context, _ time.Time, _ int, _ time.Duration) ([]dvrip.FileDescriptor, error) {
	q.recentCalls++
	return q.recent, q.recentErr
}

type memStore struct {
	saved []*Event
	err   error
}

func (s *memStore) SaveResolved(_ context.Context, ev *Event) error {
	s.saved = append(s.saved, ev)
	return s.err
}

type memSink struct{ recorded []*Event }

func (s *memSink) RecordReport(_ context.Context, ev *Event) error {
	s.recorded = append(s.recorded, ev)
	return nil
}

type memPublisher struct{ published []*Event }

func (p *memPublisher) PublishResolved(ev *Event) { p.published = append(p.published, ev) }

func newTestService(q *fakeQuerier, payloads map[string][]byte) *Service {
	dl := &stubDownloader{payloads: payloads}
	pipe := NewPipeline(dl, &stubExtractor{}, &stubExtractor{}, PipelineConfig{Workers: 1})
	return NewService(q, pipe, NewTimeline(0, 0), ServiceConfig{})
}

func TestServiceResolveRange(t *testing.T) {
	img := jpegBytes(4096)
	q := &fakeQuerier{markers: []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}}
	svc := newTestService(q, map[string][]byte{"/idea0/a.jpg": img})
	store := &memStore{}
	sink := &memSink{}
	pub := &memPublisher{}
	svc.Store, svc.Reports, svc.Notifier = store, sink, pub

	begin, end := reconBase.Add(-time.Hour), reconBase.Add(time.Hour)
	events, err := svc.ResolveRange(context.Background(), begin, end, 0)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ResolutionDirectImage, events[0].Resolution)
	assert.Equal(t, img, events[0].Image)

	assert.Len(t, store.saved, 1)
	assert.Len(t, sink.recorded, 1)
	assert.Len(t, pub.published, 1)

	// Two queries: markers over the range, clips over the padded range.
	require.Len(t, q.queries, 2)
	assert.Equal(t, dvrip.KindImageMarker, q.queries[0].Kind)
	assert.Equal(t, begin, q.queries[0].Begin)
	assert.Equal(t, dvrip.KindMotionClip, q.queries[1].Kind)
	assert.True(t, q.queries[1].Begin.Before(begin))
	assert.True(t, q.queries[1].End.After(end))
}

func TestServiceResolveRangeLimitKeepsNewest(t *testing.T) {
	q := &fakeQuerier{markers: []dvrip.FileDescriptor{
		marker("/idea0/a.jpg", reconBase),
		marker("/idea0/b.jpg", reconBase.Add(time.Minute)),
		marker("/idea0/c.jpg", reconBase.Add(2*time.Minute)),
	}}
	svc := newTestService(q, map[string][]byte{
		"/idea0/b.jpg": jpegBytes(4096),
		"/idea0/c.jpg": jpegBytes(4096),
	})

	events, err := svc.ResolveRange(context.Background(), reconBase.Add(-time.Hour), reconBase.Add(time.Hour), 2)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "/idea0/b.jpg", events[0].SourceMarker.Path)
	assert.Equal(t, "/idea0/c.jpg", events[1].SourceMarker.Path)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

func TestServiceResolveRangeMarkerQueryFails(t *testing.T) {
	q := &fakeQuerier{markerErr: errors.New("camera unreachable")}
	svc := newTestService(q, nil)

	_, err := svc.ResolveRange(context.Background(), reconBase, reconBase.Add(time.Hour), 0)
	assert.Error(t, err)
}

func TestServiceResolveLatest(t *testing.T) {
	// RecentMarkers hands back newest first.
	q := &fakeQuerier{recent: []dvrip.FileDescriptor{
		marker("/idea0/new.jpg", reconBase.Add(time.Minute)),
		marker("/idea0/old.jpg", reconBase),
	}}
	svc := newTestService(q, map[string][]byte{
		"/idea0/new.jpg": jpegBytes(4096),
		"/idea0/old.jpg": jpegBytes(4096),
	})

	events, err := svc.ResolveLatest(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, q.recentCalls)
	// Returned ascending regardless of camera ordering.
	assert.Equal(t, "/idea0/old.jpg", events[0].SourceMarker.Path)
	assert.Equal(t, "/idea0/new.jpg", events[1].SourceMarker.Path)
}

func TestServiceResolveLatestEmpty(t *testing.T) {
	svc := newTestService(&fakeQuerier{}, nil)

	events, err := svc.ResolveLatest(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestServiceContinuesMarkerOnlyWhenClipQueryFails(t *testing.T) {
	q := &fakeQuerier{
		recent:  []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)},
		clipErr: errors.New("timeout"),
	}
	svc := newTestService(q, map[string][]byte{"/idea0/a.jpg": jpegBytes(4096)})

	events, err := svc.ResolveLatest(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ResolutionDirectImage, events[0].Resolution)
	assert.Nil(t, events[0].MatchedClip)
}

func TestServiceResolveNewMarkers(t *testing.T) {
	q := &fakeQuerier{}
	svc := newTestService(q, map[string][]byte{
		"/idea0/a.jpg": jpegBytes(4096),
		"/idea0/b.jpg": jpegBytes(4096),
	})

	events, err := svc.ResolveNewMarkers(context.Background(), []dvrip.FileDescriptor{
		marker("/idea0/a.jpg", reconBase),
		marker("/idea0/b.jpg", reconBase.Add(time.Minute)),
	})

	require.NoError(t, err)
	require.Len(t, events, 2)
	// The clip query window covers the whole marker span.
	require.Len(t, q.queries, 1)
	assert.Equal(t, dvrip.KindMotionClip, q.queries[0].Kind)
	assert.True(t, q.queries[0].Begin.Before(reconBase))
	assert.True(t, q.queries[0].End.After(reconBase.Add(time.Minute)))

	empty, err := svc.ResolveNewMarkers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestServiceHandleRealtimeFeedsNextPass(t *testing.T) {
	q := &fakeQuerier{}
	svc := newTestService(q, nil)

	svc.HandleRealtime(dvrip.Notification{Timestamp: reconBase, Event: "MotionDetect", Code: "M"})

	events, err := svc.ResolveRange(context.Background(), reconBase.Add(-time.Minute), reconBase.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Realtime)
	assert.Equal(t, "M", events[0].Code)
	assert.Nil(t, events[0].SourceMarker)
	assert.Equal(t, ResolutionUnresolved, events[0].Resolution)
}

func TestServiceSinkFailureDoesNotHideEvents(t *testing.T) {
	q := &fakeQuerier{markers: []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}}
	svc := newTestService(q, map[string][]byte{"/idea0/a.jpg": jpegBytes(4096)})
	svc.Store = &memStore{err: errors.New("redis down")}
	pub := &memPublisher{}
	svc.Notifier = pub

	events, err := svc.ResolveRange(context.Background(), reconBase.Add(-time.Hour), reconBase.Add(time.Hour), 0)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Resolved())
	assert.Len(t, pub.published, 1)
}

func TestServiceNotifierSkipsUnresolved(t *testing.T) {
	q := &fakeQuerier{markers: []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}}
	svc := newTestService(q, nil) // download fails, event stays unresolved
	pub := &memPublisher{}
	svc.Notifier = pub

	events, err := svc.ResolveRange(context.Background(), reconBase.Add(-time.Hour), reconBase.Add(time.Hour), 0)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Resolved())
	assert.Empty(t, pub.published)
}

func TestServiceSetConfig(t *testing.T) {
	svc := newTestService(&fakeQuerier{}, nil)
	require.Equal(t, 24*time.Hour, svc.config().Lookback)

	svc.SetConfig(ServiceConfig{Lookback: time.Hour, Reconciler: ReconcilerConfig{Tolerance: time.Second}})

	cfg := svc.config()
	assert.Equal(t, time.Hour, cfg.Lookback)
	assert.Equal(t, time.Second, cfg.Reconciler.Tolerance)
}

func TestPollerSeedsThenResolves(t *testing.T) {
	q := &fakeQuerier{recent: []dvrip.FileDescriptor{marker("/idea0/a.jpg", reconBase)}}
	svc := newTestService(q, map[string][]byte{
		"/idea0/a.jpg": jpegBytes(4096),
		"/idea0/b.jpg": jpegBytes(4096),
	})
	store := &memStore{}
	svc.Store = store
	p := NewPoller(svc, q, svc.timeline, PollerConfig{Interval: time.Hour})

	// First pass seeds existing markers without resolving them.
	p.poll()
	assert.Empty(t, store.saved)

	// A marker discovered on a later pass gets resolved.
	q.recent = append([]dvrip.FileDescriptor{marker("/idea0/b.jpg", reconBase.Add(time.Minute))}, q.recent...)
	p.poll()
	require.Len(t, store.saved, 1)
	assert.Equal(t, "/idea0/b.jpg", store.saved[0].SourceMarker.Path)
	assert.Equal(t, ResolutionDirectImage, store.saved[0].Resolution)

	// Nothing new: no extra work.
	p.poll()
	assert.Len(t, store.saved, 1)
}

func TestPollerStartStop(t *testing.T) {
	q := &fakeQuerier{}
	svc := newTestService(q, nil)
	p := NewPoller(svc, q, svc.timeline, PollerConfig{Interval: time.Hour})

	p.Start()
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.GreaterOrEqual(t, q.recentCalls, 1)
}
