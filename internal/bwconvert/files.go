package bwconvert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultDirMode is the default permissions for created directories.
const defaultDirMode = 0o750

// supportedImageExtensions lists the container formats the registered
// decoders can sniff.
var supportedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// DiscoverImages finds all supported raster images in a given directory.
// It performs a case-insensitive extension match and does not recurse into
// subdirectories.
func DiscoverImages(dirPath string) ([]string, error) {
	dirEntries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, fmt.Errorf("could not read directory %s: %w", dirPath, readErr)
	}

	var imagePaths []string

	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if supportedImageExtensions[ext] {
			imagePaths = append(imagePaths, filepath.Join(dirPath, entry.Name()))
		}
	}

	return imagePaths, nil
}

// ensureOutputDirectory creates the output directory if it does not exist.
func ensureOutputDirectory(path string) error {
	mkdirErr := os.MkdirAll(path, defaultDirMode)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory %s: %w", path, mkdirErr)
	}

	return nil
}

// outputPathFor maps an input image to its output path: 'scan.jpg' becomes
// '<outputDir>/scan.png'.
func outputPathFor(outputDir, inputPath string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	return filepath.Join(outputDir, base+".png")
}
