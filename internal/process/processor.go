// Package process turns one input image into one upscaled JPEG and a
// classified report line. Every failure mode ends in a terminal per-item
// status; errors never escape to the batch.
package process

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/clearform/photo-upscaler/internal/img"
)

// Status classifies one item's terminal outcome.
type Status string

const (
	StatusOK               Status = "ok"
	StatusTargetNotMet     Status = "target_not_met"
	StatusFailedInvalid    Status = "failed_invalid"
	StatusFailedProcessing Status = "failed_processing"
	StatusSkipped          Status = "skipped"
)

// growthRate is applied to the scale factor between passes. Quality
// saturates near the JPEG ceiling, so only resolution growth can push the
// encoded size further up.
const growthRate = 1.15

// TSVHeader is the first line of every batch report.
const TSVHeader = "source_name\toutput_name\tstatus\tsrc_w\tsrc_h\tout_w\tout_h\tquality\tsize_mb\tnotes"

// Report is one input's outcome. Zero-valued numeric fields mean "absent"
// and render as empty TSV columns.
type Report struct {
	SourceName string
	OutputName string
	Status     Status
	SrcW       int
	SrcH       int
	OutW       int
	OutH       int
	Quality    int
	SizeMB     float64
	Notes      string
}

// TSV renders the report as one tab-separated line. Tabs and newlines in
// free-text fields are replaced with spaces so a hostile file name cannot
// break the report's framing.
func (r Report) TSV() string {
	cols := []string{
		tsvSafe(r.SourceName),
		tsvSafe(r.OutputName),
		string(r.Status),
		tsvInt(r.SrcW),
		tsvInt(r.SrcH),
		tsvInt(r.OutW),
		tsvInt(r.OutH),
		tsvInt(r.Quality),
		tsvFloat(r.SizeMB),
		tsvSafe(r.Notes),
	}
	return strings.Join(cols, "\t")
}

var tsvEscaper = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func tsvSafe(s string) string { return tsvEscaper.Replace(s) }

func tsvInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func tsvFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// Result pairs a report with the produced JPEG bytes, when any.
type Result struct {
	Report Report
	Output []byte
}

// Options bound one processing run.
type Options struct {
	Scale           float64
	TargetMB        float64
	Tolerance       float64 // zero means img.DefaultTolerance
	MaxSizePasses   int
	MaxImagePixels  int
	MaxOutputPixels int
}

// ValidateSettings rejects submissions before a job is created.
func ValidateSettings(scale, targetMB, minScale, minTargetMB, maxTargetMB float64) error {
	if scale < minScale {
		return fmt.Errorf("scale must be at least %g", minScale)
	}
	if targetMB < minTargetMB || targetMB > maxTargetMB {
		return fmt.Errorf("target size must be between %gMB and %gMB", minTargetMB, maxTargetMB)
	}
	return nil
}

// ProcessImage drives one input through validation, the upscale/encode
// convergence loop, and outcome classification. The returned report always
// carries a terminal status; the only error channel is the status itself.
func ProcessImage(ctx context.Context, path, sourceName, outputName string, strategy img.Strategy, opts Options) Result {
	tolerance := opts.Tolerance
	if tolerance == 0 {
		tolerance = img.DefaultTolerance
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return invalidResult(sourceName, outputName)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "jpeg" {
		return invalidResult(sourceName, outputName)
	}
	if opts.MaxImagePixels > 0 && cfg.Width*cfg.Height > opts.MaxImagePixels {
		return invalidResult(sourceName, outputName)
	}

	// Orientation is baked into the pixels here, so the output needs no
	// EXIF orientation tag. The source ICC profile is re-embedded by the
	// encoder.
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return invalidResult(sourceName, outputName)
	}
	icc := img.ExtractICC(data)

	srcBounds := src.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	targetBytes := img.TargetBytes(opts.TargetMB)

	var (
		best  *passResult
		notes []string
	)

	scale := opts.Scale
	for pass := 0; pass < opts.MaxSizePasses; pass++ {
		if ctx.Err() != nil {
			notes = append(notes, "Canceled before completion.")
			break
		}

		res, err := runPass(src, strategy, scale, targetBytes, tolerance, icc, opts.MaxOutputPixels)
		if err != nil {
			return Result{Report: Report{
				SourceName: sourceName,
				OutputName: outputName,
				Status:     StatusFailedProcessing,
				SrcW:       srcW,
				SrcH:       srcH,
				Notes:      err.Error(),
			}}
		}
		if res.overLimit {
			notes = append(notes, "Output exceeded max pixel limit.")
			break
		}

		// Later passes always replace earlier ones.
		best = res

		if len(res.data) >= targetBytes {
			return Result{
				Report: Report{
					SourceName: sourceName,
					OutputName: outputName,
					Status:     StatusOK,
					SrcW:       srcW,
					SrcH:       srcH,
					OutW:       res.w,
					OutH:       res.h,
					Quality:    res.quality,
					SizeMB:     img.SizeMB(len(res.data)),
					Notes:      "OK",
				},
				Output: res.data,
			}
		}

		scale *= growthRate
	}

	if best == nil {
		return Result{Report: Report{
			SourceName: sourceName,
			OutputName: outputName,
			Status:     StatusFailedProcessing,
			SrcW:       srcW,
			SrcH:       srcH,
			Notes:      joinNotes(notes, "Processing failed."),
		}}
	}

	notes = append(notes, "Upscaled and exported, but minimum target size was not reached.")
	return Result{
		Report: Report{
			SourceName: sourceName,
			OutputName: outputName,
			Status:     StatusTargetNotMet,
			SrcW:       srcW,
			SrcH:       srcH,
			OutW:       best.w,
			OutH:       best.h,
			Quality:    best.quality,
			SizeMB:     img.SizeMB(len(best.data)),
			Notes:      strings.Join(notes, " "),
		},
		Output: best.data,
	}
}

type passResult struct {
	data      []byte
	quality   int
	w, h      int
	overLimit bool
}

// runPass performs one upscale+encode attempt. Panics from the pixel
// pipeline (allocation failures on huge outputs) are downgraded to an
// error so the batch continues with the next item.
func runPass(src image.Image, strategy img.Strategy, scale float64, targetBytes int, tolerance float64, icc []byte, maxOutputPixels int) (res *passResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("insufficient memory to process this file (%v)", r)
		}
	}()

	out, err := strategy.Upscale(src, scale)
	if err != nil {
		return nil, err
	}

	b := out.Bounds()
	if maxOutputPixels > 0 && b.Dx()*b.Dy() > maxOutputPixels {
		return &passResult{overLimit: true}, nil
	}

	data, quality, err := img.EncodeTargetSize(out, targetBytes, tolerance, icc)
	if err != nil {
		return nil, err
	}
	return &passResult{data: data, quality: quality, w: b.Dx(), h: b.Dy()}, nil
}

func invalidResult(sourceName, outputName string) Result {
	return Result{Report: Report{
		SourceName: sourceName,
		OutputName: outputName,
		Status:     StatusFailedInvalid,
		Notes:      "Invalid or unsupported image.",
	}}
}

func joinNotes(notes []string, fallback string) string {
	if len(notes) == 0 {
		return fallback
	}
	return strings.Join(append(notes, fallback), " ")
}
