package codec

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	// emuPerPixel converts 96-dpi pixels to English Metric Units.
	emuPerPixel = 9525

	// Maximum rendered bounds in pixels.
	maxImageWidth  = 600
	maxImageHeight = 450

	// Fallback for images whose header we cannot decode.
	fallbackWidth  = 400
	fallbackHeight = 300
)

// ImageExtents inspects the binary image header and returns render extents
// in EMUs, scaled to the maximum bound with aspect ratio preserved. Unknown
// formats get the fixed fallback size.
func ImageExtents(data []byte) (cx, cy int64) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return fallbackWidth * emuPerPixel, fallbackHeight * emuPerPixel
	}

	w, h := scaleToBound(cfg.Width, cfg.Height, maxImageWidth, maxImageHeight)
	return int64(w) * emuPerPixel, int64(h) * emuPerPixel
}

func scaleToBound(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	return int(float64(w) * scale), int(float64(h) * scale)
}
