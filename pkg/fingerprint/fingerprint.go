// Package fingerprint derives perceptual signatures from encoded images.
//
// A fingerprint is two 64-bit hashes computed from a luminance thumbnail:
// an average hash over an 8x8 grid (bit set when the cell is at or above the
// grid mean) and a difference hash over a 9x8 grid (bit set when a cell is
// darker than its right neighbour). Both survive JPEG re-compression and
// small resizes, so near-identical photos land within a few bits of each other.
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fishlens/fishlens/pkg/models"
)

// DefaultThreshold is the largest distance, out of models.FingerprintBits,
// at which two fingerprints are treated as the same photograph.
// Re-encoding at JPEG quality 75-95 or resizing by up to 10% moves a
// fingerprint by 0-6 bits on real photos; unrelated photos are typically 40+.
const DefaultThreshold = 10

// ErrUndecodableImage is returned when the input is not a supported image.
var ErrUndecodableImage = errors.New("undecodable image")

const (
	workSize = 64 // intermediate thumbnail edge
	gridW    = 8
	gridH    = 8
)

// Compute decodes data and returns its fingerprint.
func Compute(data []byte) (models.Fingerprint, error) {
	if len(data) == 0 {
		return models.Fingerprint{}, fmt.Errorf("%w: empty input", ErrUndecodableImage)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Fingerprint{}, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	return FromImage(img)
}

// FromImage fingerprints an already decoded image.
func FromImage(img image.Image) (models.Fingerprint, error) {
	if img == nil || img.Bounds().Empty() {
		return models.Fingerprint{}, fmt.Errorf("%w: image has no pixels", ErrUndecodableImage)
	}
	work := resample(img, workSize, workSize)
	return models.Fingerprint{
		averageHash(luma(resample(work, gridW, gridH))),
		differenceHash(luma(resample(work, gridW+1, gridH))),
	}, nil
}

func resample(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// luma returns the 16-bit luminance of every pixel, row-major.
func luma(img *image.RGBA) [][]uint32 {
	b := img.Bounds()
	rows := make([][]uint32, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := make([]uint32, b.Dx())
		for x := 0; x < b.Dx(); x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := uint32(img.Pix[i]), uint32(img.Pix[i+1]), uint32(img.Pix[i+2])
			// Same weights as color.GrayModel, kept in integers.
			row[x] = (19595*r + 38470*g + 7471*bl + 1<<7) >> 8
		}
		rows[y] = row
	}
	return rows
}

func averageHash(grid [][]uint32) uint64 {
	var sum, count uint64
	for _, row := range grid {
		for _, v := range row {
			sum += uint64(v)
			count++
		}
	}

	var hash uint64
	for _, row := range grid {
		for _, v := range row {
			hash <<= 1
			// v >= mean, without the division
			if uint64(v)*count >= sum {
				hash |= 1
			}
		}
	}
	return hash
}

func differenceHash(grid [][]uint32) uint64 {
	var hash uint64
	for _, row := range grid {
		for x := 0; x+1 < len(row); x++ {
			hash <<= 1
			if row[x] < row[x+1] {
				hash |= 1
			}
		}
	}
	return hash
}

// Similar reports whether a and b are within threshold of each other.
func Similar(a, b models.Fingerprint, threshold int) bool {
	return a.Distance(b) <= threshold
}
