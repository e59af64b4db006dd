// Package img implements the image upscaling strategies and the
// size-targeting JPEG encoder.
package img

import (
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Strategy enlarges an image by the requested factor. Implementations are
// stateless after construction and safe to share across batches.
type Strategy interface {
	// Name returns the strategy name for logging and reports.
	Name() string

	// Upscale returns an image of round(w*scale) x round(h*scale) pixels,
	// at least 1x1. scale must be >= 1.0.
	Upscale(src image.Image, scale float64) (image.Image, error)
}

// scaledDims computes the exact output dimensions for a scale factor.
func scaledDims(src image.Image, scale float64) (int, int) {
	b := src.Bounds()
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// LanczosStrategy performs a single high-quality resampling pass. It has no
// external dependencies and serves as the universal fallback.
type LanczosStrategy struct{}

func (LanczosStrategy) Name() string { return "lanczos" }

func (LanczosStrategy) Upscale(src image.Image, scale float64) (image.Image, error) {
	w, h := scaledDims(src, scale)
	return imaging.Resize(src, w, h, imaging.Lanczos), nil
}

// SelectConfig carries the inputs of strategy selection.
type SelectConfig struct {
	Strategy    string
	ToolCLIPath string
	ModelPath   string
}

// SelectStrategy resolves the configured strategy name once, at startup.
// Unknown or empty names resolve to Lanczos. Requesting the external tool
// when it is unavailable logs a fallback and substitutes the model strategy.
// Model asset errors surface here, before any item is processed.
func SelectStrategy(cfg SelectConfig, logger *slog.Logger) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "topaz", "tool":
		tool := NewToolStrategy(cfg.ToolCLIPath)
		if !tool.Available() {
			logger.Warn("external upscaler CLI not available, falling back to model strategy", "cli_path", cfg.ToolCLIPath)
			return NewModelStrategy(cfg.ModelPath)
		}
		return tool, nil
	case "ai", "fsrcnn", "model":
		return NewModelStrategy(cfg.ModelPath)
	default:
		return LanczosStrategy{}, nil
	}
}
