// Command image-to-bw converts a single color image (PNG, JPEG, GIF, BMP or
// WebP) into a 1-bit black-and-white PNG using Floyd–Steinberg error
// diffusion, with inversion applied after diffusion.
//
// Usage: image-to-bw [options] <input> <output>
//
// Exit codes:
//
//	0 = success
//	1 = input could not be loaded (also used for usage errors)
//	2 = a pixel buffer could not be allocated
//	3 = output could not be written
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/book-expert/image-to-bw-service/internal/bwconvert"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses the command line and performs the conversion, returning the
// process exit code.
func run(args []string) int {
	flagSet := flag.NewFlagSet("image-to-bw", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)
	flagSet.Usage = func() { showUsage(flagSet) }

	threshold := flagSet.Int(
		"t",
		bwconvert.DefaultThreshold,
		"brightness cutoff (0-255)",
	)
	invert := flagSet.Bool(
		"i",
		false,
		"invert black and white (applied after dithering)",
	)
	verbose := flagSet.Bool(
		"v",
		false,
		"verbose mode (shows pixel size & physical dimensions)",
	)
	showVersion := flagSet.Bool("version", false, "display version information")

	parseErr := flagSet.Parse(args)
	if parseErr != nil {
		// flag already printed its own message, and the usage text for -h.
		return 1
	}

	if *showVersion {
		fmt.Printf("image-to-bw version %s\n", version)

		return 0
	}

	if flagSet.NArg() != 2 {
		flagSet.Usage()

		return 1
	}

	return bwconvert.ConvertImageBW(
		flagSet.Arg(0),
		flagSet.Arg(1),
		*threshold,
		*invert,
		*verbose,
	)
}

// showUsage prints the usage text to the flag set's output (stderr).
func showUsage(flagSet *flag.FlagSet) {
	fmt.Fprintf(
		flagSet.Output(),
		"Usage: image-to-bw [options] <input> <output>\nOptions:\n",
	)
	flagSet.PrintDefaults()
}
