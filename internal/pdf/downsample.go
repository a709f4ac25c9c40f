package pdf

import (
	"image"

	"golang.org/x/image/draw"
)

// Downsample shrinks img by factor in both dimensions when its width exceeds
// threshold. Images at or below the threshold are returned unchanged.
// A threshold <= 0 or a factor <= 1 disables downsampling.
func Downsample(img image.Image, threshold, factor int) image.Image {
	if threshold <= 0 || factor <= 1 {
		return img
	}

	b := img.Bounds()
	if b.Dx() <= threshold {
		return img
	}

	w, h := b.Dx()/factor, b.Dy()/factor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
