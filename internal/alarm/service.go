package alarm

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
	"github.com/ferZyx/ip-cam-monitor/internal/metrics"
)

// Querier is the history side of the camera. Implemented by dvrip.Client.
type Querier interface {
	QueryFiles(ctx context.Context, q dvrip.QueryParams) ([]dvrip.FileDescriptor, error)
	RecentMarkers(ctx context.Context, end time.Time, want int, lookback time.Duration) ([]dvrip.FileDescriptor, error)
}

// PhotoStore persists resolved photos and the rolling alarm history.
type PhotoStore interface {
	SaveResolved(ctx context.Context, ev *Event) error
}

// ReportSink persists per-event diagnostic reports.
type ReportSink interface {
	RecordReport(ctx context.Context, ev *Event) error
}

// Publisher fans resolved events out to whoever listens (notification
// layer, UI websocket). Best effort.
type Publisher interface {
	PublishResolved(ev *Event)
}

type ServiceConfig struct {
	Reconciler ReconcilerConfig
	// Lookback bounds how far ResolveLatest walks into the past.
	Lookback time.Duration
}

// Service is the synchronous entry point the HTTP layer and the poller
// call. Internally it fans resolution out over the pipeline's worker pool.
type Service struct {
	q        Querier
	pipe     *Pipeline
	timeline *Timeline

	mu  sync.RWMutex
	cfg ServiceConfig

	// optional sinks, nil-safe
	Store    PhotoStore
	Reports  ReportSink
	Notifier Publisher
}

func NewService(q Querier, pipe *Pipeline, timeline *Timeline, cfg ServiceConfig) *Service {
	if cfg.Lookback == 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &Service{q: q, pipe: pipe, timeline: timeline, cfg: cfg}
}

// SetConfig swaps reconciliation tunables at runtime.
func (s *Service) SetConfig(cfg ServiceConfig) {
	if cfg.Lookback == 0 {
		cfg.Lookback = 24 * time.Hour
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() ServiceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// HandleRealtime is the listener callback: record the signal on the shared
// timeline and nothing else. Resolution happens on the next pass so the
// push channel can never block the pipeline.
func (s *Service) HandleRealtime(n dvrip.Notification) {
	metrics.RealtimeAlarmsTotal.Inc()
	s.timeline.Add(Signal{Timestamp: n.Timestamp, Code: n.Code})
}

// ResolveRange reconciles and resolves every alarm in [begin, end]. When
// limit > 0 only the newest limit events are resolved and returned, still
// in ascending order.
func (s *Service) ResolveRange(ctx context.Context, begin, end time.Time, limit int) ([]*Event, error) {
	cfg := s.config()
	markers, err := s.queryKind(ctx, begin, end, dvrip.KindImageMarker)
	if err != nil {
		return nil, err
	}
	// Clip search extends past the range edges so boundary events still
	// find their clip.
	window := cfg.Reconciler.withDefaults().ClipWindow
	clips, err := s.queryKind(ctx, begin.Add(-window), end.Add(window), dvrip.KindMotionClip)
	if err != nil {
		return nil, err
	}

	events := Reconcile(markers, clips, s.timeline.Window(begin, end), cfg.Reconciler)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	s.pipe.ResolveAll(ctx, events)
	s.persist(ctx, events)
	return events, nil
}

// ResolveLatest resolves the n most recent alarms, walking backwards from
// now within the configured lookback.
func (s *Service) ResolveLatest(ctx context.Context, n int) ([]*Event, error) {
	end := time.Now()
	markers, err := s.q.RecentMarkers(ctx, end, n, s.config().Lookback)
	if err != nil {
		metrics.FileQueriesTotal.WithLabelValues(string(dvrip.KindImageMarker), "error").Inc()
		return nil, err
	}
	metrics.FileQueriesTotal.WithLabelValues(string(dvrip.KindImageMarker), "ok").Inc()
	if len(markers) == 0 {
		return nil, nil
	}

	// RecentMarkers returns newest first; the window spans the oldest one.
	oldest := markers[len(markers)-1].BeginTime
	return s.resolveMarkers(ctx, markers, oldest, end, n)
}

// ResolveNewMarkers resolves a batch of freshly discovered markers (the
// polling loop's path).
func (s *Service) ResolveNewMarkers(ctx context.Context, markers []dvrip.FileDescriptor) ([]*Event, error) {
	if len(markers) == 0 {
		return nil, nil
	}
	begin, end := markers[0].BeginTime, markers[0].BeginTime
	for _, fd := range markers[1:] {
		if fd.BeginTime.Before(begin) {
			begin = fd.BeginTime
		}
		if fd.BeginTime.After(end) {
			end = fd.BeginTime
		}
	}
	return s.resolveMarkers(ctx, markers, begin, end, 0)
}

func (s *Service) resolveMarkers(ctx context.Context, markers []dvrip.FileDescriptor, begin, end time.Time, limit int) ([]*Event, error) {
	cfg := s.config()
	window := cfg.Reconciler.withDefaults().ClipWindow
	clips, err := s.queryKind(ctx, begin.Add(-window), end.Add(window), dvrip.KindMotionClip)
	if err != nil {
		// History still works without clips; marker strategies remain.
		log.Printf("[Resolver] clip query failed, continuing marker-only: %v", err)
		clips = nil
	}

	events := Reconcile(markers, clips, s.timeline.Window(begin, end), cfg.Reconciler)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	s.pipe.ResolveAll(ctx, events)
	s.persist(ctx, events)
	return events, nil
}

func (s *Service) queryKind(ctx context.Context, begin, end time.Time, kind dvrip.FileKind) ([]dvrip.FileDescriptor, error) {
	fds, err := s.q.QueryFiles(ctx, dvrip.QueryParams{Begin: begin, End: end, Kind: kind})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FileQueriesTotal.WithLabelValues(string(kind), status).Inc()
	return fds, err
}

// persist pushes terminal events to the configured sinks. Sink failures
// are logged, never propagated: a broken database must not hide a resolved
// photo from the caller.
func (s *Service) persist(ctx context.Context, events []*Event) {
	for _, ev := range events {
		if s.Store != nil {
			if err := s.Store.SaveResolved(ctx, ev); err != nil {
				log.Printf("[Resolver] store save failed for %s: %v", ev.ID, err)
			}
		}
		if s.Reports != nil {
			if err := s.Reports.RecordReport(ctx, ev); err != nil {
				log.Printf("[Resolver] report insert failed for %s: %v", ev.ID, err)
			}
		}
		if s.Notifier != nil && ev.Resolved() {
			s.Notifier.PublishResolved(ev)
		}
	}
}
