package img

import (
	"fmt"
	"image"
	"os"
)

// ToolStrategy represents delegation to an external upscaler CLI. The CLI
// integration itself is not wired up; the strategy exists so selection can
// detect the tool's absence and fall back, instead of fabricating output.
type ToolStrategy struct {
	cliPath string
}

func NewToolStrategy(cliPath string) *ToolStrategy {
	return &ToolStrategy{cliPath: cliPath}
}

func (*ToolStrategy) Name() string { return "topaz" }

// Available reports whether the configured CLI exists on disk.
func (s *ToolStrategy) Available() bool {
	if s.cliPath == "" {
		return false
	}
	_, err := os.Stat(s.cliPath)
	return err == nil
}

func (s *ToolStrategy) Upscale(image.Image, float64) (image.Image, error) {
	return nil, fmt.Errorf("external upscaler CLI integration is not enabled; set UPSCALE_STRATEGY=fsrcnn or UPSCALE_STRATEGY=lanczos for unattended runs")
}
