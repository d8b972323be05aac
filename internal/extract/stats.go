package extract

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// computeStats measures one decoded BGR frame. All Mats are scoped here;
// the caller's frame is not modified.
func computeStats(frame gocv.Mat, idx int, bottomFrac float64) (FrameStats, error) {
	rows, cols := frame.Rows(), frame.Cols()
	if rows == 0 || cols == 0 {
		return FrameStats{}, fmt.Errorf("empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	stats := FrameStats{Index: idx}
	stats.Sharpness = laplacianVariance(gray)
	stats.Contrast = stdDev(gray)
	stats.GrayRatio = lowSaturationRatio(frame)

	cut := int(float64(rows) * (1.0 - bottomFrac))
	if cut < 0 {
		cut = 0
	}
	if cut < rows {
		bottom := gray.Region(image.Rect(0, cut, cols, rows))
		defer bottom.Close()
		stats.BottomWhiteRatio = nearWhiteRatio(bottom)
		stats.BottomStd = stdDev(bottom)
	}
	return stats, nil
}

func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	sigma := stdDev(lap)
	return sigma * sigma
}

func stdDev(m gocv.Mat) float64 {
	mean := gocv.NewMat()
	defer mean.Close()
	std := gocv.NewMat()
	defer std.Close()
	gocv.MeanStdDev(m, &mean, &std)
	if std.Empty() {
		return 0
	}
	return std.GetDoubleAt(0, 0)
}

// lowSaturationRatio is the fraction of pixels with HSV saturation < 18,
// i.e. effectively colorless. Decoder garbage is gray.
func lowSaturationRatio(frame gocv.Mat) float64 {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()
	if len(channels) < 2 {
		return 0
	}

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(channels[1], &mask, 17, 255, gocv.ThresholdBinaryInv)
	return ratioNonZero(mask)
}

func nearWhiteRatio(gray gocv.Mat) float64 {
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, 245, 255, gocv.ThresholdBinary)
	return ratioNonZero(mask)
}

func ratioNonZero(mask gocv.Mat) float64 {
	total := mask.Rows() * mask.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(mask)) / float64(total)
}
