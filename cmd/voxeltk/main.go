package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"voxeltk/pkg/config"
	"voxeltk/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "voxeltk.yaml", "YAML configuration file (defaults are used if missing)")
	writeConfig := flag.Bool("write-config", false, "Write the effective configuration to -config and exit")
	workers := flag.Int("workers", -1, "Number of worker goroutines per traversal (default: from config)")
	outputDir := flag.String("output", "", "Output directory (default: from config)")
	slices := flag.Bool("slices", false, "Also export TIFF slice sequences")
	spectral := flag.Bool("spectral", false, "Smooth with the FFT low-pass instead of a Gaussian kernel")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the file and the environment
	if *workers >= 0 {
		cfg.Parallel.Workers = *workers
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *slices {
		cfg.Output.Slices = true
	}
	if *spectral {
		cfg.Filter.Spectral = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	if *writeConfig {
		if err := config.SaveConfig(cfg, *configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", *configPath)
		return
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	p, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("================================")
	fmt.Println("VOXELTK: PARALLEL VOXEL PROCESSING ON A SYNTHETIC VOLUME")
	fmt.Println("================================")

	startTime := time.Now()
	res, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	processingTime := time.Since(startTime)

	a := res.Phantom.Attributes()
	fmt.Printf("\nProcessed %v in %.2f seconds\n", a, processingTime.Seconds())
	for _, s := range res.Stages {
		fmt.Printf("- %-10s %8.1f ms\n", s.Name, float64(s.Duration.Microseconds())/1000)
	}

	fmt.Printf("\nSimilarity to the smoothed volume:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("%-28s %12s %12s\n", "", "transformed", "restored")
	fmt.Printf("%-28s %12d %12d\n", "Voxels compared", res.Misaligned.Count, res.Aligned.Count)
	fmt.Printf("%-28s %12.3f %12.3f\n", "Root Mean Square Error", res.Misaligned.RMSE, res.Aligned.RMSE)
	fmt.Printf("%-28s %12.4f %12.4f\n", "Normalised Cross-Correlation", res.Misaligned.NCC, res.Aligned.NCC)
	fmt.Printf("%-28s %12.4f %12.4f\n", "Structural Similarity", res.Misaligned.SSIM, res.Aligned.SSIM)
	fmt.Printf("%-28s %12.4f %12.4f\n", "Mutual Information", res.Misaligned.MI, res.Aligned.MI)
	fmt.Printf("%-28s %12.4f %12.4f\n", "Normalised MI", res.Misaligned.NMI, res.Aligned.NMI)

	fmt.Printf("\nLandmark errors (%s):\n", cfg.Registration.ErrorFunction)
	fmt.Printf("- Corresponding points: %.4f\n", res.LandmarkError)
	fmt.Printf("- Closest points:       %.4f\n", res.ClosestPointError)
	fmt.Printf("- Forward and back:     %.2e\n", res.LandmarkResidual)

	if len(res.Files) > 0 {
		fmt.Printf("\nWrote %d files to %s\n", len(res.Files), cfg.Output.Dir)
	}
}
