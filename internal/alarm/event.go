// Package alarm reconciles the camera's two alarm channels into one
// ordered event list and resolves each event to a single usable photo.
package alarm

import (
	"time"

	"github.com/google/uuid"

	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
)

type Resolution string

const (
	ResolutionUnresolved          Resolution = "unresolved"
	ResolutionDirectImage         Resolution = "direct_image"
	ResolutionExtractedFromMarker Resolution = "extracted_from_marker"
	ResolutionExtractedFromClip   Resolution = "extracted_from_clip"
)

// Event is one reconciled alarm. Created by Reconcile from one or more
// signals sharing an approximate timestamp, mutated by the pipeline as it
// walks the strategy ladder, terminal once Image is set or every strategy
// is exhausted.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Code      string     `json:"code,omitempty"` // M/H/L/V event code when known
	Realtime  bool       `json:"realtime"`       // seen on the push channel

	SourceMarker *dvrip.FileDescriptor `json:"source_marker,omitempty"`
	MatchedClip  *dvrip.FileDescriptor `json:"matched_clip,omitempty"`

	Resolution Resolution `json:"resolution"`
	Image      []byte     `json:"-"`

	Report Report `json:"report"`
}

// Report is the diagnostic record for one resolution attempt, exported for
// the UI layer to persist.
type Report struct {
	Strategy      string  `json:"strategy"`
	PayloadClass  string  `json:"payload_class,omitempty"`
	MarkerPath    string  `json:"marker_path,omitempty"`
	ClipPath      string  `json:"clip_path,omitempty"`
	DownloadCount int     `json:"download_count"`
	FrameIndex    int     `json:"frame_index"`
	Score         float64 `json:"score"`
	Error         string  `json:"error,omitempty"`
	DurationMs    int64   `json:"duration_ms"`
}

// Resolved reports whether the event ended with a usable image.
func (e *Event) Resolved() bool {
	return e.Resolution != ResolutionUnresolved && len(e.Image) > 0
}
