package extract

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gocv.io/x/gocv"
)

var (
	// ErrDecode means zero frames came out of the payload: corrupt or
	// empty stream.
	ErrDecode = errors.New("extract: no frames decoded")
	// ErrLowQuality means frames decoded but every one scored under the
	// accept threshold. A bad frame is worse than no frame.
	ErrLowQuality = errors.New("extract: all frames below quality threshold")
)

// Default frame samples. Marker fragments are short and damaged at the
// front, so sampling is dense and shallow; motion clips are 10-25s long
// and sampling strides through them.
var (
	MarkerSamples = []int{0, 1, 2, 3, 5, 8, 10, 12, 14, 16, 18, 20, 24, 28, 32}
	ClipSamples   = []int{0, 10, 30, 60, 90, 120, 150, 180}
)

type Result struct {
	JPEG       []byte
	FrameIndex int
	Score      float64
	Stats      FrameStats
}

type Options struct {
	Scorer          Scorer
	AcceptThreshold float64
	// BottomFrac is the fraction of frame height treated as the "bottom
	// band" for corruption stats.
	BottomFrac  float64
	JPEGQuality int
	TempDir     string // empty = os.TempDir
}

// Extractor decodes video payloads via OpenCV and picks the best frame.
// It is stateless and safe for concurrent use.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	if opts.Scorer == nil {
		opts.Scorer = DefaultContentScorer()
	}
	if opts.BottomFrac <= 0 || opts.BottomFrac > 0.9 {
		opts.BottomFrac = 0.35
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 92
	}
	return &Extractor{opts: opts}
}

// BestFrame decodes media (an H264 elementary stream) up to the highest
// sampled index, scores the sampled frames and returns the winner encoded
// as JPEG.
func (e *Extractor) BestFrame(ctx context.Context, media []byte, samples []int) (*Result, error) {
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: empty stream", ErrDecode)
	}
	if len(samples) == 0 {
		samples = ClipSamples
	}

	// VideoCapture wants a file path.
	tmp, err := os.CreateTemp(e.opts.TempDir, "alarm-media-*.h264")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(media); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer cap.Close()
	if !cap.IsOpened() {
		return nil, fmt.Errorf("%w: capture failed to open", ErrDecode)
	}

	wanted := make(map[int]struct{}, len(samples))
	maxIdx := 0
	for _, idx := range samples {
		wanted[idx] = struct{}{}
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	frame := gocv.NewMat()
	defer frame.Close()
	best := gocv.NewMat()
	defer best.Close()

	decoded := 0
	bestScore := 0.0
	var bestStats FrameStats
	haveBest := false

	for idx := 0; idx <= maxIdx; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := cap.Read(&frame); !ok || frame.Empty() {
			break // clips often lack a clean end; take what decoded
		}
		decoded++

		if _, take := wanted[idx]; !take {
			continue
		}

		stats, err := computeStats(frame, idx, e.opts.BottomFrac)
		if err != nil {
			continue
		}
		score := e.opts.Scorer.Score(stats)
		if !haveBest || score > bestScore {
			frame.CopyTo(&best)
			bestScore = score
			bestStats = stats
			haveBest = true
		}
	}

	if decoded == 0 || !haveBest {
		return nil, ErrDecode
	}
	if bestScore < e.opts.AcceptThreshold {
		return nil, fmt.Errorf("%w: best=%.1f threshold=%.1f (frame %d)",
			ErrLowQuality, bestScore, e.opts.AcceptThreshold, bestStats.Index)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, best,
		[]int{gocv.IMWriteJpegQuality, e.opts.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())

	return &Result{
		JPEG:       jpeg,
		FrameIndex: bestStats.Index,
		Score:      bestScore,
		Stats:      bestStats,
	}, nil
}
