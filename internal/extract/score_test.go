package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentScorerRewardsDetail(t *testing.T) {
	s := DefaultContentScorer()

	clean := FrameStats{Sharpness: 300, Contrast: 50, GrayRatio: 0.1, BottomWhiteRatio: 0, BottomStd: 40}
	blurry := FrameStats{Sharpness: 20, Contrast: 50, GrayRatio: 0.1, BottomWhiteRatio: 0, BottomStd: 40}

	assert.Greater(t, s.Score(clean), s.Score(blurry))
}

func TestContentScorerPunishesGray(t *testing.T) {
	s := DefaultContentScorer()

	clean := FrameStats{Sharpness: 300, Contrast: 50, GrayRatio: 0.05, BottomStd: 40}
	washed := clean
	washed.GrayRatio = 0.9

	assert.Greater(t, s.Score(clean), s.Score(washed))
	// Fully gray zeroes the content term entirely.
	allGray := clean
	allGray.GrayRatio = 1.0
	assert.LessOrEqual(t, s.Score(allGray), 0.0)
}

func TestContentScorerPunishesWhiteSmear(t *testing.T) {
	s := DefaultContentScorer()

	clean := FrameStats{Sharpness: 200, Contrast: 40, BottomStd: 40}
	smeared := clean
	smeared.BottomWhiteRatio = 0.5

	// Half the bottom band white is a bigger hit than the whole content term.
	assert.Less(t, s.Score(smeared), 0.0)
	assert.Greater(t, s.Score(clean), s.Score(smeared))
}

func TestContentScorerPunishesFlatBottom(t *testing.T) {
	s := DefaultContentScorer()

	base := FrameStats{Sharpness: 100, Contrast: 20, BottomStd: 40}
	flat := base
	flat.BottomStd = 2

	assert.InDelta(t, s.Score(base)-s.FlatBottomPenalty, s.Score(flat), 1e-9)
}

func TestContentScorerGrayRatioClamped(t *testing.T) {
	s := DefaultContentScorer()
	fs := FrameStats{Sharpness: 100, Contrast: 10, GrayRatio: 1.7, BottomStd: 40}
	// An out-of-range ratio must not flip the sign of the content term.
	assert.GreaterOrEqual(t, s.Score(fs), -s.BottomWhitePenalty)
	assert.LessOrEqual(t, s.Score(fs), 0.0)
}

func TestSharpnessScorer(t *testing.T) {
	s := SharpnessScorer{}
	assert.Equal(t, 42.0, s.Score(FrameStats{Sharpness: 42, Contrast: 999}))
	assert.Equal(t, "sharpness", s.Name())
}
