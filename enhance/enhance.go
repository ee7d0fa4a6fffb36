//
// Tencent is pleased to support the open source community by making trpc-docproc-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docproc-go is licensed under the Apache License Version 2.0.
//

// Package enhance implements the image enhancement pipeline applied before OCR.
//
// The pipeline is a fixed sequence of deterministic filters: luminance
// conversion, non-local-means denoising, high-pass sharpening and adaptive
// Gaussian binarization. The same input always produces the same output,
// and the output is a single-channel binary image with the dimensions of
// the input.
package enhance

import (
	"image"
	"image/color"
	"math"
)

const (
	defaultDenoiseStrength = 10.0
	defaultTemplateWindow  = 7
	defaultSearchWindow    = 21
	defaultBlockSize       = 11
	defaultThresholdOffset = 2.0
)

// options holds internal configuration for the enhancement pipeline.
type options struct {
	denoiseStrength float64 // NLM filter strength h
	templateWindow  int     // NLM patch size, odd
	searchWindow    int     // NLM search window size, odd
	blockSize       int     // adaptive threshold neighborhood, odd
	thresholdOffset float64 // constant subtracted from the local threshold
}

// Option configures the enhancement pipeline.
type Option func(*options)

// WithDenoiseStrength sets the non-local-means filter strength.
// Larger values remove more noise at the cost of detail.
func WithDenoiseStrength(h float64) Option {
	return func(o *options) {
		if h > 0 {
			o.denoiseStrength = h
		}
	}
}

// WithTemplateWindow sets the non-local-means patch size. Must be odd;
// even or non-positive values are ignored.
func WithTemplateWindow(size int) Option {
	return func(o *options) {
		if size > 0 && size%2 == 1 {
			o.templateWindow = size
		}
	}
}

// WithSearchWindow sets the non-local-means search window size. Must be
// odd; even or non-positive values are ignored.
func WithSearchWindow(size int) Option {
	return func(o *options) {
		if size > 0 && size%2 == 1 {
			o.searchWindow = size
		}
	}
}

// WithBlockSize sets the adaptive threshold neighborhood size. Must be
// odd and at least 3; other values are ignored.
func WithBlockSize(size int) Option {
	return func(o *options) {
		if size >= 3 && size%2 == 1 {
			o.blockSize = size
		}
	}
}

// WithThresholdOffset sets the constant subtracted from the local
// Gaussian-weighted mean when binarizing.
func WithThresholdOffset(c float64) Option {
	return func(o *options) {
		o.thresholdOffset = c
	}
}

// Pipeline applies the enhancement filter chain to raster images.
type Pipeline struct {
	config *options
}

// New creates an enhancement pipeline with the given options.
func New(opts ...Option) *Pipeline {
	cfg := &options{
		denoiseStrength: defaultDenoiseStrength,
		templateWindow:  defaultTemplateWindow,
		searchWindow:    defaultSearchWindow,
		blockSize:       defaultBlockSize,
		thresholdOffset: defaultThresholdOffset,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Pipeline{config: cfg}
}

// Apply runs the full filter chain on img and returns a binary
// single-channel image of the same dimensions. Every pixel of the result
// is either 0 or 255.
func (p *Pipeline) Apply(img image.Image) *image.Gray {
	gray := Grayscale(img)
	denoised := p.denoise(gray)
	sharpened := sharpen(denoised)
	return p.binarize(sharpened)
}

// Grayscale converts an image to single-channel luminance using the
// Rec. 601 weights.
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			gray.SetGray(x-bounds.Min.X, y-bounds.Min.Y, c)
		}
	}
	return gray
}

// denoise applies a non-local-means filter: each pixel becomes a weighted
// average of pixels in its search window, weighted by patch similarity.
//
// Patch distances are accumulated per search offset over an integral
// image of shifted squared differences, so the per-pixel cost is bounded
// by the search area alone, not search area times patch area.
func (p *Pipeline) denoise(src *image.Gray) *image.Gray {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	halfPatch := p.config.templateWindow / 2
	halfSearch := p.config.searchWindow / 2
	h2 := p.config.denoiseStrength * p.config.denoiseStrength
	side := 2*halfPatch + 1
	patchArea := float64(side * side)

	pad := halfSearch + halfPatch
	plane, pw := padReplicate(src, pad)

	// The difference plane covers every patch position around every pixel.
	dw := w + 2*halfPatch
	dh := h + 2*halfPatch
	diff := make([]float64, dw*dh)
	integral := make([]float64, (dw+1)*(dh+1))
	sums := make([]float64, w*h)
	weights := make([]float64, w*h)

	for dy := -halfSearch; dy <= halfSearch; dy++ {
		for dx := -halfSearch; dx <= halfSearch; dx++ {
			// Squared difference between the plane and its (dx,dy) shift.
			for j := 0; j < dh; j++ {
				by := j + pad - halfPatch
				row := by * pw
				shiftedRow := (by + dy) * pw
				for i := 0; i < dw; i++ {
					bx := i + pad - halfPatch
					d := plane[row+bx] - plane[shiftedRow+bx+dx]
					diff[j*dw+i] = d * d
				}
			}
			integralImage(diff, dw, dh, integral)

			for y := 0; y < h; y++ {
				top := y * (dw + 1)
				bottom := (y + side) * (dw + 1)
				shiftedRow := (y + pad + dy) * pw
				for x := 0; x < w; x++ {
					patchSum := integral[bottom+x+side] - integral[bottom+x] -
						integral[top+x+side] + integral[top+x]
					weight := math.Exp(-patchSum / patchArea / h2)
					idx := y*w + x
					sums[idx] += weight * plane[shiftedRow+x+pad+dx]
					weights[idx] += weight
				}
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			dst.SetGray(x, y, color.Gray{Y: clampByte(sums[idx] / weights[idx])})
		}
	}
	return dst
}

// padReplicate copies src into a float64 plane with pad rows and columns
// of edge replication on every side, returning the plane and its stride.
func padReplicate(src *image.Gray, pad int) ([]float64, int) {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	pw := w + 2*pad
	ph := h + 2*pad
	plane := make([]float64, pw*ph)
	for y := 0; y < ph; y++ {
		sy := clampInt(y-pad, 0, h-1)
		for x := 0; x < pw; x++ {
			sx := clampInt(x-pad, 0, w-1)
			plane[y*pw+x] = float64(src.GrayAt(sx, sy).Y)
		}
	}
	return plane, pw
}

// integralImage fills out with the summed-area table of src (w by h). out
// holds (w+1)*(h+1) entries with a zero first row and column, so any
// rectangle sum is four lookups.
func integralImage(src []float64, w, h int, out []float64) {
	for i := 0; i <= w; i++ {
		out[i] = 0
	}
	for y := 0; y < h; y++ {
		rowSum := 0.0
		out[(y+1)*(w+1)] = 0
		for x := 0; x < w; x++ {
			rowSum += src[y*w+x]
			out[(y+1)*(w+1)+x+1] = out[y*(w+1)+x+1] + rowSum
		}
	}
}

// sharpen convolves with the unity-gain high-pass kernel
// (center 9, eight neighbors -1), clamping the result to [0,255].
func sharpen(src *image.Gray) *image.Gray {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := 9 * int(pixelAt(src, x, y))
			neighbors := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					neighbors += int(pixelAt(src, x+dx, y+dy))
				}
			}
			dst.SetGray(x, y, color.Gray{Y: clampByte(float64(center - neighbors))})
		}
	}
	return dst
}

// binarize applies adaptive Gaussian thresholding: each pixel is compared
// against the Gaussian-weighted mean of its blockSize neighborhood minus
// the configured offset. Pixels above the local threshold become 255,
// everything else 0.
func (p *Pipeline) binarize(src *image.Gray) *image.Gray {
	w := src.Rect.Dx()
	h := src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	kernel := gaussianKernel(p.config.blockSize)
	half := p.config.blockSize / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var mean float64
			for ky := -half; ky <= half; ky++ {
				for kx := -half; kx <= half; kx++ {
					weight := kernel[ky+half] * kernel[kx+half]
					mean += weight * float64(pixelAt(src, x+kx, y+ky))
				}
			}
			threshold := mean - p.config.thresholdOffset
			if float64(src.GrayAt(x, y).Y) > threshold {
				dst.SetGray(x, y, color.Gray{Y: 255})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

// gaussianKernel returns a normalized 1D Gaussian kernel of the given odd
// size, with sigma derived from the size the way OpenCV derives it for
// adaptive thresholding.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	half := size / 2
	var sum float64
	for i := 0; i < size; i++ {
		d := float64(i - half)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// pixelAt reads a pixel with edge replication for out-of-bounds
// coordinates.
func pixelAt(src *image.Gray, x, y int) uint8 {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= src.Rect.Dx() {
		x = src.Rect.Dx() - 1
	}
	if y >= src.Rect.Dy() {
		y = src.Rect.Dy() - 1
	}
	return src.GrayAt(x, y).Y
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
