package bwconvert

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	// Register the remaining decoders so image.Decode can sniff PNG, JPEG,
	// GIF, BMP and WebP containers.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrImageZeroPixels is returned when a decoded image has no pixels.
	ErrImageZeroPixels = errors.New("image has zero pixels")
	// ErrImageTooLarge is returned when width*height would overflow the
	// pixel addressing space.
	ErrImageTooLarge = errors.New("image dimensions overflow the pixel address space")
)

const (
	// outputFileMode is the permission mode of written output files.
	outputFileMode = 0o600

	// bitsToShift narrows the 16-bit samples of color.Color.RGBA to 8 bits.
	bitsToShift = 8
)

// loadRGB decodes the image at path and flattens it to a dense
// 3-samples-per-pixel RGB buffer. The container format is auto-detected from
// the stream, never from the file name.
func loadRGB(path string) ([]uint8, int, int, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, 0, 0, fmt.Errorf("could not open file %s: %w", path, openErr)
	}

	defer func() {
		cerr := file.Close()
		if cerr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to close file %s: %v\n", path, cerr)
		}
	}()

	img, _, decodeErr := image.Decode(file)
	if decodeErr != nil {
		return nil, 0, 0, fmt.Errorf("could not decode image file %s: %w", path, decodeErr)
	}

	bounds := img.Bounds()

	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, 0, fmt.Errorf("%s: %w", path, ErrImageZeroPixels)
	}

	if width > math.MaxInt/samplesPerRGBPixel/height {
		return nil, 0, 0, fmt.Errorf("%s (%dx%d): %w", path, width, height, ErrImageTooLarge)
	}

	rgb := make([]uint8, samplesPerRGBPixel*width*height)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			rgb[i] = uint8(r >> bitsToShift)
			rgb[i+1] = uint8(g >> bitsToShift)
			rgb[i+2] = uint8(b >> bitsToShift)
			i += samplesPerRGBPixel
		}
	}

	return rgb, width, height, nil
}

// writeGrayPNG encodes a single-channel buffer as an 8-bit grayscale PNG. The
// image is encoded fully in memory first so a failed encode never leaves a
// partial file behind.
func writeGrayPNG(path string, pix []uint8, width, height int) error {
	img := &image.Gray{
		Pix:    pix,
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}

	var buf bytes.Buffer

	encodeErr := png.Encode(&buf, img)
	if encodeErr != nil {
		return fmt.Errorf("could not encode PNG: %w", encodeErr)
	}

	writeErr := os.WriteFile(path, buf.Bytes(), outputFileMode)
	if writeErr != nil {
		return fmt.Errorf("could not write %s: %w", path, writeErr)
	}

	return nil
}
