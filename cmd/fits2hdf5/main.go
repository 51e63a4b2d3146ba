package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"fits2hdf5/internal/fitssource"
	"fits2hdf5/internal/hdf5sink"
	"fits2hdf5/pkg/config"
	"fits2hdf5/pkg/converter"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "Path to YAML configuration file")
	outputPath := flag.String("o", "", "Output HDF5 filename (default: input name with .hdf5 extension)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (0 = use configuration value)")
	mipmaps := flag.Bool("mipmaps", false, "Generate downsampled datasets")
	quiet := flag.Bool("quiet", false, "Only log warnings and errors")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options] input.fits [output.hdf5]\n\nOptions:\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	output := *outputPath
	if flag.NArg() == 2 {
		output = flag.Arg(1)
	}
	if output == "" {
		output = defaultOutput(input)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}
	if *mipmaps {
		cfg.Mipmaps.Enabled = true
	}
	if *quiet {
		cfg.Output.Verbose = false
	}

	logger := newLogger(cfg.Output.Verbose)
	defer logger.Sync()
	sugar := logger.Sugar()

	source, err := fitssource.Open(input)
	if err != nil {
		sugar.Fatalw("opening input failed", "path", input, "error", err)
	}

	tempPath := output + ".tmp"
	conv := converter.New(converter.Params{
		Source:     source,
		Sink:       hdf5sink.New(tempPath),
		OutputPath: output,
		TempPath:   tempPath,
		Config:     cfg,
		Logger:     sugar,
	})
	if err := conv.Run(); err != nil {
		sugar.Fatalw("conversion failed", "input", input, "error", err)
	}
}

// newLogger builds the process logger. Verbose mode logs progress at info
// level; otherwise only warnings and errors are emitted.
func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// defaultOutput derives the output filename from the input by swapping the
// FITS extension for .hdf5.
func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	switch strings.ToLower(ext) {
	case ".fits", ".fit":
		return strings.TrimSuffix(input, ext) + ".hdf5"
	}
	return input + ".hdf5"
}
