// Package extract turns a raw motion-clip elementary stream into one
// trustworthy still image: decode a bounded number of leading frames,
// score each for corruption, keep the best.
package extract

// FrameStats are the per-frame measurements scoring works on. Computing
// them is the decoder's job; judging them is a Scorer's. Keeping the two
// apart keeps the scoring policy swappable and unit-testable without a
// video stack.
type FrameStats struct {
	Index int

	// Sharpness is the Laplacian variance of the grayscale frame.
	Sharpness float64
	// Contrast is the grayscale standard deviation.
	Contrast float64
	// GrayRatio is the fraction of low-saturation pixels; decoder artifacts
	// show up as large uniform gray blocks.
	GrayRatio float64
	// BottomWhiteRatio is the fraction of near-white pixels in the bottom
	// band. Mid-GOP starts on this firmware render a white smear there.
	BottomWhiteRatio float64
	// BottomStd is the grayscale stddev of the bottom band.
	BottomStd float64
}

// Scorer ranks decoded frames. Higher is better; the zero line is
// meaningless on its own, only AcceptThreshold gives it teeth.
type Scorer interface {
	Score(FrameStats) float64
	Name() string
}

// ContentScorer is the default policy for alarm-marker fragments: favor
// information content and punish the two corruption artifacts this camera
// actually produces.
type ContentScorer struct {
	ContrastWeight     float64
	BottomWhitePenalty float64
	FlatBottomPenalty  float64
	// FlatBottomStd is the bottom-band stddev under which the band counts
	// as flat (truncated decode).
	FlatBottomStd float64
}

func DefaultContentScorer() ContentScorer {
	return ContentScorer{
		ContrastWeight:     5.0,
		BottomWhitePenalty: 900.0,
		FlatBottomPenalty:  250.0,
		FlatBottomStd:      8.0,
	}
}

func (c ContentScorer) Name() string { return "content" }

func (c ContentScorer) Score(fs FrameStats) float64 {
	score := fs.Sharpness + fs.Contrast*c.ContrastWeight
	score *= clamp01(1.0 - fs.GrayRatio)
	score -= fs.BottomWhiteRatio * c.BottomWhitePenalty
	if fs.BottomStd < c.FlatBottomStd {
		score -= c.FlatBottomPenalty
	}
	return score
}

// SharpnessScorer is the cheap policy for full motion clips, where frames
// are usually intact and the question is only which one is least blurry.
type SharpnessScorer struct{}

func (SharpnessScorer) Name() string { return "sharpness" }

func (SharpnessScorer) Score(fs FrameStats) float64 { return fs.Sharpness }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
