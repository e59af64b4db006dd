// cmd/upscale provides a standalone CLI for upscaling a single image to a
// target size without running the web service.
//
// Usage:
//
//	./upscale -input photo.jpg -scale 4 -target-mb 20
//	./upscale -input photo.jpg -output big.jpg -strategy fsrcnn -v
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clearform/photo-upscaler/internal/img"
	"github.com/clearform/photo-upscaler/internal/process"
)

func main() {
	input := flag.String("input", "", "Input JPEG path (required)")
	output := flag.String("output", "", "Output path (default: input_upscaled.jpg)")
	scale := flag.Float64("scale", 4.0, "Upscale factor")
	targetMB := flag.Float64("target-mb", 20.0, "Minimum output size in megabytes")
	strategyName := flag.String("strategy", "lanczos", "Upscaling strategy (lanczos, fsrcnn, topaz)")
	passes := flag.Int("passes", 6, "Maximum size-targeting passes")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(*input); os.IsNotExist(err) {
		fmt.Printf("❌ Input file not found: %s\n", *input)
		os.Exit(1)
	}
	if *output == "" {
		ext := filepath.Ext(*input)
		*output = strings.TrimSuffix(*input, ext) + "_upscaled.jpg"
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	strategy, err := img.SelectStrategy(img.SelectConfig{
		Strategy:    *strategyName,
		ToolCLIPath: os.Getenv("TOPAZ_CLI_PATH"),
		ModelPath:   os.Getenv("MODEL_PATH"),
	}, logger)
	if err != nil {
		fmt.Printf("❌ Strategy unavailable: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Printf("🔧 Using strategy: %s\n", strategy.Name())
	}

	fmt.Println("🎨 Upscaling...")
	start := time.Now()

	res := process.ProcessImage(context.Background(), *input, filepath.Base(*input), filepath.Base(*output), strategy, process.Options{
		Scale:           *scale,
		TargetMB:        *targetMB,
		MaxSizePasses:   *passes,
		MaxImagePixels:  12000 * 12000,
		MaxOutputPixels: 20000 * 20000,
	})

	rep := res.Report
	if len(res.Output) == 0 {
		fmt.Printf("❌ %s: %s\n", rep.Status, rep.Notes)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, res.Output, 0o644); err != nil {
		fmt.Printf("❌ Write output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ %s\n", rep.Notes)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📁 Output: %s\n", *output)
	fmt.Printf("📏 Dimensions: %dx%d -> %dx%d\n", rep.SrcW, rep.SrcH, rep.OutW, rep.OutH)
	fmt.Printf("🎚  Quality: %d\n", rep.Quality)
	fmt.Printf("💾 Size: %.2f MB\n", rep.SizeMB)
	fmt.Printf("⏱  Time: %v\n", time.Since(start).Round(time.Millisecond))
	if rep.Status == process.StatusTargetNotMet {
		fmt.Println("⚠️  Minimum target size was not reached.")
	}
}
