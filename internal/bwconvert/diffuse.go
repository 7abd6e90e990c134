package bwconvert

import (
	"fmt"
	"io"
)

// Floyd–Steinberg diffusion weights for the four not-yet-visited neighbors.
const (
	fsRight      = 7.0 / 16.0
	fsBelowLeft  = 3.0 / 16.0
	fsBelow      = 5.0 / 16.0
	fsBelowRight = 1.0 / 16.0
)

// maxSample is the white level of an 8-bit sample.
const maxSample = 255

// progressRowInterval is how often diffuse reports progress in verbose mode.
const progressRowInterval = 50

// newErrorBuffer seeds the floating-point error accumulator from the
// grayscale samples.
func newErrorBuffer(gray []uint8) []float32 {
	acc := make([]float32, len(gray))
	for i, v := range gray {
		acc[i] = float32(v)
	}

	return acc
}

// diffuse quantizes every sample to pure black or pure white in row-major
// order, carrying the quantization error forward into the accumulator. A
// sample whose accumulated value equals the threshold quantizes to white.
// Accumulated values may leave [0,255] and are never clamped before the
// comparison. out and acc must both hold width*height samples; out may be the
// buffer the accumulator was seeded from.
func diffuse(out []uint8, acc []float32, width, height, threshold int, progress io.Writer) {
	total := width * height
	for idx := range total {
		old := acc[idx]

		neu := float32(maxSample)
		if old < float32(threshold) {
			neu = 0
		}

		out[idx] = uint8(neu)
		disperseError(acc, idx, old-neu, width, height)

		if progress != nil && idx%width == 0 && (idx/width)%progressRowInterval == 0 {
			_, _ = fmt.Fprintf(progress, "Processing row %d/%d\n", idx/width, height)
		}
	}
}

// disperseError adds the weighted quantization error to the forward and below
// neighbors. Neighbors outside the image are skipped; nothing wraps around.
func disperseError(acc []float32, idx int, quantError float32, width, height int) {
	row := idx / width
	col := idx % width

	if col+1 < width {
		acc[idx+1] += quantError * fsRight
	}

	if row+1 < height {
		if col > 0 {
			acc[idx+width-1] += quantError * fsBelowLeft
		}

		acc[idx+width] += quantError * fsBelow

		if col+1 < width {
			acc[idx+width+1] += quantError * fsBelowRight
		}
	}
}

// invertInPlace flips every sample. It must run only after the diffusion pass
// has completed; inverting earlier would corrupt the error carried in the
// accumulator.
func invertInPlace(pix []uint8) {
	for i, v := range pix {
		pix[i] = maxSample - v
	}
}
