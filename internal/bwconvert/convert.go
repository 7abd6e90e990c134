package bwconvert

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// DefaultThreshold is the brightness cutoff used by the frontends when
	// none is configured.
	DefaultThreshold = 128

	// outputDPI is the nominal print resolution for the verbose
	// physical-size report.
	outputDPI = 300

	mmPerInch = 25.4
)

// Config holds the parameters of a single conversion. It is immutable for the
// duration of one Convert call.
//
// Threshold is accepted unclamped: the cutoff is a raw less-than comparison
// against the running error accumulator, which itself may leave the 0..255
// sample range as diffused error builds up.
type Config struct {
	// Diagnostics receives human-readable progress and error lines.
	// Defaults to os.Stderr.
	Diagnostics io.Writer
	Threshold   int
	Invert      bool
	Verbose     bool
}

// Converter runs color-to-1-bit conversions with a fixed configuration. Each
// Convert call owns its buffers end-to-end, so one Converter is safe to use
// for independent conversions from multiple goroutines.
type Converter struct {
	config Config
}

// NewConverter creates a Converter, filling defaults for unset Config fields.
// A zero Threshold is kept as-is: it is a meaningful cutoff, not an unset
// value, so frontends apply DefaultThreshold themselves.
func NewConverter(cfg Config) *Converter {
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = os.Stderr
	}

	return &Converter{config: cfg}
}

// Convert runs the full pipeline for one image: decode, grayscale reduction,
// Floyd–Steinberg diffusion, optional inversion, PNG encode. Any stage
// failure short-circuits the remaining stages and no output file is written.
func (converter *Converter) Convert(inputPath, outputPath string) Outcome {
	gray, width, height, outcome := converter.loadGray(inputPath)
	if outcome != OutcomeOK {
		return outcome
	}

	acc := newErrorBuffer(gray)

	// The binary result reuses the grayscale buffer's storage.
	diffuse(gray, acc, width, height, converter.config.Threshold, converter.progressWriter())

	if converter.config.Invert {
		invertInPlace(gray)
	}

	return converter.save(outputPath, gray, width, height)
}

// loadGray decodes the input image and reduces it to a single-channel buffer.
func (converter *Converter) loadGray(path string) ([]uint8, int, int, Outcome) {
	rgb, width, height, loadErr := loadRGB(path)
	if loadErr != nil {
		converter.errorf("Error: cannot load '%s': %v\n", path, loadErr)

		if errors.Is(loadErr, ErrImageTooLarge) {
			return nil, 0, 0, OutcomeOutOfMemory
		}

		return nil, 0, 0, OutcomeLoadFailed
	}

	gray := reduceToGray(rgb, width, height)

	converter.verbosef("Loaded '%s' (%dx%d)\n", path, width, height)

	return gray, width, height, OutcomeOK
}

// save encodes the finished buffer as a single-channel PNG at path.
func (converter *Converter) save(path string, pix []uint8, width, height int) Outcome {
	converter.verbosef("Writing '%s'\n", path)

	widthMM := float32(width) / outputDPI * mmPerInch
	heightMM := float32(height) / outputDPI * mmPerInch
	converter.verbosef(
		"Output: %dx%d px (~%.2fmm x %.2fmm at %ddpi)\n",
		width, height, widthMM, heightMM, outputDPI,
	)

	writeErr := writeGrayPNG(path, pix, width, height)
	if writeErr != nil {
		converter.errorf("Error: cannot write '%s': %v\n", path, writeErr)

		return OutcomeWriteFailed
	}

	return OutcomeOK
}

// progressWriter returns the writer the diffusion pass should report row
// progress to, or nil outside verbose mode.
func (converter *Converter) progressWriter() io.Writer {
	if converter.config.Verbose {
		return converter.config.Diagnostics
	}

	return nil
}

// errorf writes a diagnostic line regardless of verbose mode.
func (converter *Converter) errorf(format string, args ...any) {
	_, _ = fmt.Fprintf(converter.config.Diagnostics, format, args...)
}

// verbosef writes a diagnostic line in verbose mode only.
func (converter *Converter) verbosef(format string, args ...any) {
	if converter.config.Verbose {
		converter.errorf(format, args...)
	}
}

// ConvertImageBW converts the image at inputPath into a 1-bit black-and-white
// PNG at outputPath and returns a stable integer code: 0 on success, 1 when
// the input cannot be loaded, 2 when a pixel buffer cannot be allocated, 3
// when the output cannot be written.
func ConvertImageBW(inputPath, outputPath string, threshold int, invert, verbose bool) int {
	converter := NewConverter(Config{
		Diagnostics: nil,
		Threshold:   threshold,
		Invert:      invert,
		Verbose:     verbose,
	})

	return converter.Convert(inputPath, outputPath).ExitCode()
}
