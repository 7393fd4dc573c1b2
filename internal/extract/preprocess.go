package extract

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Preprocess runs the deterministic pre-OCR pipeline: grayscale, then
// global binarization with an Otsu threshold. It is a pure function of the
// input bytes and returns the processed image re-encoded as PNG.
func Preprocess(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	gray := toGray(imaging.Grayscale(src))
	binarize(gray, otsuThreshold(gray))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toGray(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// Channels are equal after Grayscale; take R.
			dst.SetGray(x, y, color.Gray{Y: src.NRGBAAt(x, y).R})
		}
	}
	return dst
}

// otsuThreshold picks the cut that maximizes between-class variance of the
// luminance histogram.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	total := 0
	for _, px := range img.Pix {
		hist[px]++
		total++
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var sumB, wB float64
	var best float64
	threshold := uint8(128)
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

func binarize(img *image.Gray, threshold uint8) {
	for i, px := range img.Pix {
		if px > threshold {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}
