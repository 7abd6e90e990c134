package bwconvert_test

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/image-to-bw-service/internal/bwconvert"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	proc := bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         "",
		OutputPath:        "",
		Threshold:         0,
		Workers:           0,
		Invert:            false,
		Verbose:           false,
	}, log)
	require.ErrorIs(t, proc.ValidateConfigForTest(), bwconvert.ErrInputPathRequired)

	proc = bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         "in",
		OutputPath:        "",
		Threshold:         0,
		Workers:           0,
		Invert:            false,
		Verbose:           false,
	}, log)
	require.ErrorIs(t, proc.ValidateConfigForTest(), bwconvert.ErrOutputPathRequired)

	proc = bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         "in",
		OutputPath:        "out",
		Threshold:         0,
		Workers:           0,
		Invert:            false,
		Verbose:           false,
	}, log)
	require.NoError(t, proc.ValidateConfigForTest())
}

func TestApplyDefaultOptions(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	proc := bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         "in",
		OutputPath:        "out",
		Threshold:         0,
		Workers:           0,
		Invert:            false,
		Verbose:           false,
	}, log)

	cfg := proc.ConfigForTest()
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, bwconvert.DefaultThreshold, cfg.Threshold)
	assert.NotNil(t, cfg.ProgressBarOutput)
}

func TestDiscoverImagesAndEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// create files
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.JPG"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bmp"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.txt"), []byte(""), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.png"), 0o750))

	files, err := bwconvert.DiscoverImages(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	log := newTestLogger(t)

	proc := bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         dir,
		OutputPath:        t.TempDir(),
		Threshold:         0,
		Workers:           0,
		Invert:            false,
		Verbose:           false,
	}, log)
	paths, err := proc.DiscoverInputImagesForTest()
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	emptyDir := t.TempDir()

	proc = bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         emptyDir,
		OutputPath:        t.TempDir(),
		Threshold:         0,
		Workers:           0,
		Invert:            false,
		Verbose:           false,
	}, log)
	_, err = proc.DiscoverInputImagesForTest()
	require.Error(t, err)
}

func TestOutputPathFor(t *testing.T) {
	t.Parallel()

	assert.Equal(
		t,
		filepath.Join("out", "scan.png"),
		bwconvert.OutputPathForTest("out", filepath.Join("in", "scan.jpeg")),
	)
	assert.Equal(
		t,
		filepath.Join("out", "page_0001.png"),
		bwconvert.OutputPathForTest("out", filepath.Join("in", "page_0001.png")),
	)
}

// writeGradientPNG creates a small grayscale gradient test image.
func writeGradientPNG(t *testing.T, path string) {
	t.Helper()

	pixels := make([]color.NRGBA, 16)
	for i := range pixels {
		pixels[i] = opaque(uint8(16 * i))
	}

	writeTestPNG(t, path, 4, 4, pixels)
}

func TestProcessConvertsDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	writeGradientPNG(t, filepath.Join(inDir, "one.png"))
	writeGradientPNG(t, filepath.Join(inDir, "two.png"))

	// Set a buffer for the progress bar.
	var buf bytes.Buffer

	log := newTestLogger(t)

	proc := bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: &buf,
		InputPath:         inDir,
		OutputPath:        outDir,
		Threshold:         0,
		Workers:           2,
		Invert:            false,
		Verbose:           false,
	}, log)

	require.NoError(t, proc.Process(ctx))
	assert.NotEqual(t, 0, buf.Len())

	for _, name := range []string{"one.png", "two.png"} {
		outputPath := filepath.Join(outDir, name)

		for i, v := range decodeSamples(t, outputPath) {
			require.True(t, v == 0 || v == 255, "%s sample %d is %d", name, i, v)
		}
	}
}

func TestProcessFailsOnMissingInputDir(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)

	proc := bwconvert.NewProcessor(&bwconvert.Options{
		ProgressBarOutput: bytes.NewBuffer(nil),
		InputPath:         filepath.Join(t.TempDir(), "does-not-exist"),
		OutputPath:        t.TempDir(),
		Threshold:         0,
		Workers:           1,
		Invert:            false,
		Verbose:           false,
	}, log)
	require.Error(t, proc.Process(context.Background()))
}
