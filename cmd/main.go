// File: ./cmd/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/image-to-bw-service/internal/bwconvert"
)

// Define named types for each section of the configuration.
type configPaths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
}

type configLogsDir struct {
	ImageToBW string `toml:"image_to_bw"`
}

type configSettings struct {
	Threshold int  `toml:"threshold"`
	Workers   int  `toml:"workers"`
	Invert    bool `toml:"invert"`
	Verbose   bool `toml:"verbose"`
}

// config represents the structure of the project.toml file.
type config struct {
	Paths    configPaths    `toml:"paths"`
	LogsDir  configLogsDir  `toml:"logs_dir"`
	Settings configSettings `toml:"settings"`
}

func main() {
	ctx := context.Background()
	// The `run` function contains the core application logic.
	// We call it and then os.Exit to ensure deferred functions are run correctly.
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main logic function, separated from main to allow for easier
// testing and clean exit handling.
func run(ctx context.Context) error {
	projectRoot, configPath, err := configurator.FindProjectRoot(".")
	if err != nil {
		return fmt.Errorf("could not find project root: %w", err)
	}

	cfg, err := safeLoadConfig(configPath)
	if err != nil {
		return err
	}

	flgs := parseFlags()
	options := mergeConfigAndFlags(&cfg, flgs)

	return processWithLogger(ctx, &options, projectRoot, cfg.LogsDir.ImageToBW)
}

// safeLoadConfig loads the TOML config, allowing missing file without error.
func safeLoadConfig(path string) (config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			var emptyCfg config

			return emptyCfg, nil
		}

		return config{}, fmt.Errorf("error loading config file: %w", err)
	}

	return cfg, nil
}

// loadConfig reads and parses the project.toml file.
func loadConfig(path string) (config, error) {
	var cfg config

	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		var zero config

		return zero, fmt.Errorf("failed to decode config file: %w", err)
	}

	return cfg, nil
}

// flags represents the command-line arguments.
type flags struct {
	inputPath  string
	outputPath string
	threshold  int
	workers    int
	invert     bool
}

// parseFlags defines and parses command-line flags.
func parseFlags() flags {
	var flagsVar flags
	flag.StringVar(
		&flagsVar.inputPath,
		"input",
		"",
		"Input directory with images to convert (required).",
	)
	flag.StringVar(
		&flagsVar.outputPath,
		"output",
		"",
		"Output directory for black-and-white PNGs (required).",
	)
	flag.IntVar(
		&flagsVar.threshold,
		"threshold",
		0,
		"Brightness cutoff for quantization (0-255).",
	)
	flag.IntVar(&flagsVar.workers, "workers", 0, "Number of concurrent workers.")
	flag.BoolVar(
		&flagsVar.invert,
		"invert",
		false,
		"Invert black and white after dithering.",
	)
	flag.Parse()

	return flagsVar
}

// mergeConfigAndFlags combines settings from the config file and command-line
// flags. Flags take precedence over the config file settings.
func mergeConfigAndFlags(cfg *config, flgs flags) bwconvert.Options {
	opts := bwconvert.Options{
		ProgressBarOutput: nil,
		InputPath:         cfg.Paths.InputDir,
		OutputPath:        cfg.Paths.OutputDir,
		Threshold:         cfg.Settings.Threshold,
		Workers:           cfg.Settings.Workers,
		Invert:            cfg.Settings.Invert,
		Verbose:           cfg.Settings.Verbose,
	}

	// Command-line flags override config file values.
	if flgs.inputPath != "" {
		opts.InputPath = flgs.inputPath
	}

	if flgs.outputPath != "" {
		opts.OutputPath = flgs.outputPath
	}

	if flgs.threshold > 0 {
		opts.Threshold = flgs.threshold
	}

	if flgs.workers > 0 {
		opts.Workers = flgs.workers
	}

	if flgs.invert {
		opts.Invert = true
	}

	return opts
}

// processWithLogger sets up the logger and runs the processor.
func processWithLogger(
	ctx context.Context,
	options *bwconvert.Options,
	projectRoot string,
	logDir string,
) error {
	log, err := setupLogger(projectRoot, logDir)
	if err != nil {
		return fmt.Errorf("could not set up logger: %w", err)
	}

	defer func() {
		cerr := log.Close()
		if cerr != nil {
			_, _ = fmt.Fprintf(
				os.Stderr,
				"failed to close logger: %v\n",
				cerr,
			)
		}
	}()

	processor := bwconvert.NewProcessor(options, log)

	procErr := processor.Process(ctx)
	if procErr != nil {
		return fmt.Errorf("image conversion failed: %w", procErr)
	}

	return nil
}

// setupLogger initializes the logger, creating the log directory if needed.
func setupLogger(projectRoot, logDirConfig string) (*logger.Logger, error) {
	logDir := logDirConfig
	if logDir == "" {
		logDir = filepath.Join(projectRoot, "logs", "image_to_bw")
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}
