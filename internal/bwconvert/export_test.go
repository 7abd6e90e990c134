package bwconvert

import "io"

// Exported test-only accessors for unexported functions and fields.
// This file is compiled only during tests and does not affect the public API.

// ReduceToGrayForTest exposes reduceToGray for tests in the external package.
func ReduceToGrayForTest(rgb []uint8, width, height int) []uint8 {
	return reduceToGray(rgb, width, height)
}

// NewErrorBufferForTest exposes newErrorBuffer for tests in the external package.
func NewErrorBufferForTest(gray []uint8) []float32 { return newErrorBuffer(gray) }

// DiffuseForTest exposes diffuse for tests in the external package.
func DiffuseForTest(out []uint8, acc []float32, width, height, threshold int, progress io.Writer) {
	diffuse(out, acc, width, height, threshold, progress)
}

// DisperseErrorForTest exposes disperseError for tests in the external package.
func DisperseErrorForTest(acc []float32, idx int, quantError float32, width, height int) {
	disperseError(acc, idx, quantError, width, height)
}

// InvertInPlaceForTest exposes invertInPlace for tests in the external package.
func InvertInPlaceForTest(pix []uint8) { invertInPlace(pix) }

// OutputPathForTest exposes outputPathFor for tests in the external package.
func OutputPathForTest(outputDir, inputPath string) string {
	return outputPathFor(outputDir, inputPath)
}

// ConfigForTest returns a copy of the processor configuration for assertions
// in tests.
func (processor *Processor) ConfigForTest() Options { return processor.config }

// Test-only helpers to access unexported methods for white-box tests from the
// external package.
func (processor *Processor) ValidateConfigForTest() error { return processor.validateConfig() }

func (processor *Processor) DiscoverInputImagesForTest() ([]string, error) {
	return processor.discoverInputImages()
}
