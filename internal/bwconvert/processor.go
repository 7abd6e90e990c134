package bwconvert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/book-expert/logger"
	"github.com/cheggaaa/pb/v3"
)

var (
	// ErrInputPathRequired is returned when the input path is not provided.
	ErrInputPathRequired = errors.New("input path is required")
	// ErrOutputPathRequired is returned when the output path is not provided.
	ErrOutputPathRequired = errors.New("output path is required")
)

// Options holds all configurable parameters for a batch Processor.
// This struct is used to initialize a new Processor with user-defined settings.
type Options struct {
	ProgressBarOutput io.Writer
	InputPath         string
	OutputPath        string
	Threshold         int
	Workers           int
	Invert            bool
	Verbose           bool
}

// Processor converts every supported image in a directory. Each image is an
// independent unit of work; the diffusion pass itself is strictly sequential,
// so parallelism happens only across images.
type Processor struct {
	log    *logger.Logger
	config Options
}

// NewProcessor creates and initializes a new Processor with the given options
// and logger. It sets sensible defaults for any zero-value fields in Options.
func NewProcessor(opts *Options, log *logger.Logger) *Processor {
	applyDefaultOptions(opts)

	return &Processor{
		config: *opts,
		log:    log,
	}
}

// applyDefaultOptions fills zero-value fields in Options with sensible defaults.
func applyDefaultOptions(opts *Options) {
	opts.Workers = defaultIntNonPositive(opts.Workers, runtime.NumCPU())
	opts.Threshold = defaultIntNonPositive(opts.Threshold, DefaultThreshold)
	opts.ProgressBarOutput = defaultWriterNil(opts.ProgressBarOutput, os.Stdout)
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

func defaultWriterNil(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}

	return w
}

// Process is the main entry point for a batch conversion job. It discovers
// supported images in the input directory and converts each one, logging
// per-image failures without aborting the batch.
func (processor *Processor) Process(ctx context.Context) error {
	// Step 1: Validate the configuration before starting any work.
	err := processor.validateConfig()
	if err != nil {
		return err
	}

	// Step 2: Discover all supported images in the input directory.
	imagePaths, err := processor.discoverInputImages()
	if err != nil {
		return err
	}

	// Step 3: Convert each discovered image.
	processor.log.Info("Found %d image(s) to convert.", len(imagePaths))

	return processor.convertAll(ctx, imagePaths)
}

// validateConfig checks if the essential configuration options have been provided.
func (processor *Processor) validateConfig() error {
	if processor.config.InputPath == "" {
		return ErrInputPathRequired
	}

	if processor.config.OutputPath == "" {
		return ErrOutputPathRequired
	}

	return nil
}

// discoverInputImages discovers input images and validates a non-empty result.
func (processor *Processor) discoverInputImages() ([]string, error) {
	imagePaths, discoveryErr := DiscoverImages(processor.config.InputPath)
	if discoveryErr != nil {
		return nil, fmt.Errorf("failed to discover images: %w", discoveryErr)
	}

	if len(imagePaths) == 0 {
		return nil, fmt.Errorf(
			"no supported images found in %s: %w",
			processor.config.InputPath,
			os.ErrNotExist,
		)
	}

	return imagePaths, nil
}

// conversionJob represents a single task for a worker to convert one image.
type conversionJob struct {
	inputPath  string
	outputPath string
}

// convertAll distributes the images over a worker pool and waits for
// completion, showing overall progress on a progress bar.
func (processor *Processor) convertAll(ctx context.Context, imagePaths []string) error {
	err := ensureOutputDirectory(processor.config.OutputPath)
	if err != nil {
		return err
	}

	progressBar := pb.New(len(imagePaths)).
		SetTemplateString(`{{ bar . " " "━" "━" " " " "}} {{percent .}} {{rtime .}}`).
		SetWriter(processor.config.ProgressBarOutput).
		Start()
	defer progressBar.Finish()

	jobs := make(chan conversionJob, len(imagePaths))

	var waitGroup sync.WaitGroup

	// Start a pool of worker goroutines.
	for range processor.config.Workers {
		waitGroup.Add(1)

		go processor.conversionWorker(ctx, &waitGroup, jobs, progressBar)
	}

	for _, inputPath := range imagePaths {
		jobs <- conversionJob{
			inputPath:  inputPath,
			outputPath: outputPathFor(processor.config.OutputPath, inputPath),
		}
	}

	close(jobs) // No more jobs will be sent.

	waitGroup.Wait() // Wait for all workers to finish.

	return nil
}

// conversionWorker is a goroutine that pulls jobs from the channel and
// converts them. It runs until the jobs channel is closed and empty.
func (processor *Processor) conversionWorker(
	ctx context.Context,
	waitGroup *sync.WaitGroup,
	jobs <-chan conversionJob,
	progressBar *pb.ProgressBar,
) {
	defer waitGroup.Done()

	converter := NewConverter(Config{
		Diagnostics: io.Discard,
		Threshold:   processor.config.Threshold,
		Invert:      processor.config.Invert,
		Verbose:     processor.config.Verbose,
	})

	for job := range jobs {
		// Check if the context has been canceled (e.g., by Ctrl+C).
		if ctx.Err() != nil {
			processor.log.Warn(
				"Context canceled, skipping %s",
				filepath.Base(job.inputPath),
			)

			return
		}

		outcome := converter.Convert(job.inputPath, job.outputPath)
		if outcome != OutcomeOK {
			processor.log.Error(
				"Failed to convert %s: %v",
				filepath.Base(job.inputPath),
				outcome.Err(),
			)
			// Continue to the next image even if one fails.
		} else {
			processor.log.Success("Converted %s", filepath.Base(job.inputPath))
		}

		progressBar.Increment()
	}
}
