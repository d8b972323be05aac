package alarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
	"github.com/ferZyx/ip-cam-monitor/internal/extract"
	"github.com/ferZyx/ip-cam-monitor/internal/metrics"
	"github.com/ferZyx/ip-cam-monitor/internal/payload"
)

// Downloader fetches a descriptor's raw payload. Implemented by
// dvrip.Client; stubbed in tests.
type Downloader interface {
	Download(ctx context.Context, fd dvrip.FileDescriptor) ([]byte, error)
}

// FrameExtractor decodes a video payload and returns the best frame.
type FrameExtractor interface {
	BestFrame(ctx context.Context, media []byte, samples []int) (*extract.Result, error)
}

type PipelineConfig struct {
	// Workers bounds concurrent event resolution.
	Workers int
	// MinPayloadBytes is the placeholder cutoff handed to classification.
	MinPayloadBytes int
	// StrictMarkers skips clip fallback for events that had a marker which
	// turned out unrecoverable, trading completeness for speed.
	StrictMarkers bool

	MarkerSamples []int
	ClipSamples   []int
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if len(c.MarkerSamples) == 0 {
		c.MarkerSamples = extract.MarkerSamples
	}
	if len(c.ClipSamples) == 0 {
		c.ClipSamples = extract.ClipSamples
	}
	return c
}

// Pipeline resolves alarm events to photos, walking the strategy ladder
// per event: direct marker image, marker-derived extraction, clip-derived
// extraction, unresolved. Events are independent; a failure in one never
// aborts the batch.
type Pipeline struct {
	dl      Downloader
	markerX FrameExtractor
	clipX   FrameExtractor

	mu  sync.RWMutex
	cfg PipelineConfig
}

func NewPipeline(dl Downloader, markerX, clipX FrameExtractor, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		dl:      dl,
		markerX: markerX,
		clipX:   clipX,
		cfg:     cfg.withDefaults(),
	}
}

// SetConfig swaps the tunables. In-flight events keep the snapshot they
// started with.
func (p *Pipeline) SetConfig(cfg PipelineConfig) {
	p.mu.Lock()
	p.cfg = cfg.withDefaults()
	p.mu.Unlock()
}

func (p *Pipeline) config() PipelineConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// ResolveAll resolves events concurrently on a bounded worker pool and
// returns when every event is terminal.
func (p *Pipeline) ResolveAll(ctx context.Context, events []*Event) {
	cfg := p.config()
	sem := make(chan struct{}, cfg.Workers)
	var wg sync.WaitGroup

	for _, ev := range events {
		if ev.Resolved() {
			continue
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(ev *Event) {
			defer wg.Done()
			defer func() { <-sem }()
			p.resolve(ctx, ev, cfg)
		}(ev)
	}
	wg.Wait()
}

func (p *Pipeline) resolve(ctx context.Context, ev *Event, cfg PipelineConfig) {
	start := time.Now()
	defer func() {
		ev.Report.DurationMs = time.Since(start).Milliseconds()
		ev.Report.Strategy = string(ev.Resolution)
		metrics.ResolutionsTotal.WithLabelValues(string(ev.Resolution)).Inc()
		metrics.ResolutionSeconds.Observe(time.Since(start).Seconds())
	}()

	var lastErr error

	if ev.SourceMarker != nil {
		done, err := p.tryMarker(ctx, ev, cfg)
		if done {
			return
		}
		if err != nil {
			lastErr = err
		}
		if cfg.StrictMarkers {
			p.markUnresolved(ev, lastErr)
			return
		}
	}

	if ev.MatchedClip != nil {
		if err := p.tryClip(ctx, ev, cfg); err == nil {
			return
		} else {
			lastErr = err
		}
	}

	p.markUnresolved(ev, lastErr)
}

// tryMarker attempts strategies 1 and 2: direct image, then extraction
// from the marker payload. done=true means the event is resolved.
func (p *Pipeline) tryMarker(ctx context.Context, ev *Event, cfg PipelineConfig) (bool, error) {
	data, err := p.download(ctx, ev, *ev.SourceMarker)
	if err != nil {
		return false, err
	}

	class := payload.Classify(data, cfg.MinPayloadBytes)
	ev.Report.PayloadClass = string(class)
	metrics.PayloadClassTotal.WithLabelValues(string(class)).Inc()

	switch class {
	case payload.RealImage:
		// Accepted as-is: validated bytes are never re-encoded.
		ev.Image = data
		ev.Resolution = ResolutionDirectImage
		return true, nil

	case payload.Placeholder:
		// Nothing retrievable behind this index entry; extraction on
		// near-zero bytes is pointless by definition.
		return false, fmt.Errorf("marker %s: placeholder payload (%d bytes)", ev.SourceMarker.Path, len(data))

	case payload.VideoFragment:
		media := payload.Demux(data)
		if len(media) == 0 {
			return false, fmt.Errorf("marker %s: %w", ev.SourceMarker.Path, extract.ErrDecode)
		}
		res, err := p.markerX.BestFrame(ctx, media, cfg.MarkerSamples)
		if err != nil {
			return false, fmt.Errorf("marker %s: %w", ev.SourceMarker.Path, err)
		}
		p.accept(ev, ResolutionExtractedFromMarker, res)
		return true, nil

	default: // Unknown
		// Some firmwares bury a full JPEG in an otherwise opaque payload.
		if jpeg, ok := payload.ExtractEmbeddedJPEG(data); ok {
			ev.Image = jpeg
			ev.Resolution = ResolutionExtractedFromMarker
			ev.Report.PayloadClass = string(class) + "+embedded_jpeg"
			return true, nil
		}
		return false, fmt.Errorf("marker %s: unrecognized payload", ev.SourceMarker.Path)
	}
}

func (p *Pipeline) tryClip(ctx context.Context, ev *Event, cfg PipelineConfig) error {
	data, err := p.download(ctx, ev, *ev.MatchedClip)
	if err != nil {
		return err
	}

	class := payload.Classify(data, cfg.MinPayloadBytes)
	metrics.PayloadClassTotal.WithLabelValues(string(class)).Inc()
	if class == payload.Placeholder {
		return fmt.Errorf("clip %s: placeholder payload (%d bytes)", ev.MatchedClip.Path, len(data))
	}

	media := payload.Demux(data)
	if len(media) == 0 {
		return fmt.Errorf("clip %s: %w", ev.MatchedClip.Path, extract.ErrDecode)
	}
	res, err := p.clipX.BestFrame(ctx, media, cfg.ClipSamples)
	if err != nil {
		return fmt.Errorf("clip %s: %w", ev.MatchedClip.Path, err)
	}
	p.accept(ev, ResolutionExtractedFromClip, res)
	return nil
}

func (p *Pipeline) download(ctx context.Context, ev *Event, fd dvrip.FileDescriptor) ([]byte, error) {
	ev.Report.DownloadCount++
	outcome := "ok"
	data, err := p.dl.Download(ctx, fd)
	if err != nil {
		outcome = "error"
		if errors.Is(err, dvrip.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	metrics.DownloadsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		metrics.DownloadBytes.Observe(float64(len(data)))
	}
	return data, err
}

func (p *Pipeline) accept(ev *Event, r Resolution, res *extract.Result) {
	ev.Image = res.JPEG
	ev.Resolution = r
	ev.Report.FrameIndex = res.FrameIndex
	ev.Report.Score = res.Score
	metrics.ExtractionScore.Observe(res.Score)
}

func (p *Pipeline) markUnresolved(ev *Event, err error) {
	ev.Resolution = ResolutionUnresolved
	if err != nil {
		ev.Report.Error = err.Error()
		log.Printf("[Pipeline] event %s unresolved: %v", ev.Timestamp.Format(dvrip.TimeLayout), err)
	}
}
