package img

import (
	"bytes"
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Encoder search bounds. Below 70 the artifacts are unacceptable for print
// masters; above 98 file size grows without visible gain.
const (
	minQuality = 70
	maxQuality = 98
)

// DefaultTolerance is the relative window around the target size the encoder
// treats as close enough.
const DefaultTolerance = 0.12

// ErrEncodeFailed reports that no probe produced an encoding at all.
var ErrEncodeFailed = errors.New("failed to encode JPEG")

// TargetBytes converts a target size in megabytes to a byte count.
func TargetBytes(targetMB float64) int {
	return int(targetMB * 1024 * 1024)
}

// SizeMB reports a byte count as megabytes rounded to two decimals.
func SizeMB(n int) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}

// EncodeTargetSize binary-searches the JPEG quality level whose encoded size
// falls within tolerance of targetBytes. When no level lands inside the
// band, it returns the probe closest to the target by absolute distance, so
// the result is never worse than the best observed attempt. icc, when
// non-nil, is spliced into every candidate before it is measured.
func EncodeTargetSize(src image.Image, targetBytes int, tolerance float64, icc []byte) ([]byte, int, error) {
	low, high := minQuality, maxQuality
	var bestData []byte
	bestQuality := 0
	bestGap := math.MaxInt

	for low <= high {
		q := (low + high) / 2

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, 0, err
		}
		data := InjectICC(buf.Bytes(), icc)
		size := len(data)

		gap := size - targetBytes
		if gap < 0 {
			gap = -gap
		}
		if gap < bestGap {
			bestGap = gap
			bestData = data
			bestQuality = q
		}

		switch {
		case float64(size) < float64(targetBytes)*(1-tolerance):
			low = q + 1
		case float64(size) > float64(targetBytes)*(1+tolerance):
			high = q - 1
		default:
			return data, q, nil
		}
	}

	if bestData == nil {
		return nil, 0, ErrEncodeFailed
	}
	return bestData, bestQuality, nil
}
